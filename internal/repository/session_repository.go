package repository

import (
	"sync"
	"time"

	"go-image-editor/internal/editor"
)

// InMemorySessionRepository keeps sessions in a map guarded by a RWMutex
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*editor.Session
	limit    int
}

// NewInMemorySessionRepository creates a repository. limit <= 0 means unbounded.
func NewInMemorySessionRepository(limit int) *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[string]*editor.Session),
		limit:    limit,
	}
}

// Save stores a new session
func (r *InMemorySessionRepository) Save(session *editor.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID()]; ok {
		return ErrSessionExists
	}
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return ErrRepositoryFull
	}
	r.sessions[session.ID()] = session
	return nil
}

// Get returns the session stored under id
func (r *InMemorySessionRepository) Get(id string) (*editor.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes and returns the session stored under id
func (r *InMemorySessionRepository) Delete(id string) (*editor.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.sessions, id)
	return s, nil
}

// List returns every stored session
func (r *InMemorySessionRepository) List() []*editor.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*editor.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// IdleSince returns sessions whose last activity is before cutoff
func (r *InMemorySessionRepository) IdleSince(cutoff time.Time) []*editor.Session {
	// LastActivity takes the session lock; never hold ours while calling it
	var idle []*editor.Session
	for _, s := range r.List() {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	return idle
}

// Count returns the number of stored sessions
func (r *InMemorySessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
