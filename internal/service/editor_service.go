// Package service hosts editing sessions: it creates them, hands them to the
// transport layer and tears down the ones nobody touches anymore.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-image-editor/internal/editor"
	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/logger"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/remote"
	"go-image-editor/internal/repository"
	"go-image-editor/internal/storage"
	"go-image-editor/pkg/models"
)

// EditorService defines the session lifecycle operations
type EditorService interface {
	// CreateSession starts a session on an already hosted image
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (models.SessionSnapshot, error)

	// CreateSessionFromUpload stores the file with the storage backend and starts a session on it
	CreateSessionFromUpload(ctx context.Context, filename, contentType string, data []byte) (models.SessionSnapshot, error)

	// GetSession returns a live session
	GetSession(id string) (*editor.Session, error)

	// CloseSession tears a session down and forgets it
	CloseSession(id string) error

	// Notifications drains the pending notifications of a session
	Notifications(id string) ([]notify.Notification, error)

	// SweepIdle closes sessions idle for longer than the configured TTL
	SweepIdle() int

	// ActiveSessions returns the number of live sessions
	ActiveSessions() int

	// Shutdown closes every session
	Shutdown()
}

// Dependencies are the collaborators shared by every session
type Dependencies struct {
	Remote   remote.Service
	Poll     poller.Policy
	Images   repository.ImageRepository
	Sessions repository.SessionRepository
	Storage  storage.Backend
	Verifier editor.Verifier
	Events   editor.EventSink
	IdleTTL  time.Duration
	Clock    func() time.Time
}

// editorService implements EditorService
type editorService struct {
	deps Dependencies
	now  func() time.Time
	log  *logrus.Entry

	mu      sync.Mutex
	inboxes map[string]*notify.Inbox
}

// NewEditorService creates a new editor service
func NewEditorService(deps Dependencies) EditorService {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	if deps.Sessions == nil {
		deps.Sessions = repository.NewInMemorySessionRepository(0)
	}
	return &editorService{
		deps:    deps,
		now:     now,
		log:     logger.ForComponent("editor_service"),
		inboxes: make(map[string]*notify.Inbox),
	}
}

// CreateSession starts a session on an already hosted image
func (s *editorService) CreateSession(ctx context.Context, req models.CreateSessionRequest) (models.SessionSnapshot, error) {
	session, err := s.newSession()
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	snap, err := session.LoadImage(req.AssetID, req.ImageURL)
	if err != nil {
		s.discard(session.ID())
		return models.SessionSnapshot{}, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": session.ID(),
		"asset_id":   req.AssetID,
	}).Info("Session created")
	return snap, nil
}

// CreateSessionFromUpload stores the file with the storage backend and starts a session on it
func (s *editorService) CreateSessionFromUpload(ctx context.Context, filename, contentType string, data []byte) (models.SessionSnapshot, error) {
	if s.deps.Storage == nil {
		return models.SessionSnapshot{}, apperrors.NewValidationError("uploads are disabled: no storage backend configured", nil)
	}

	uploaded, err := s.deps.Storage.Upload(ctx, filename, contentType, data)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	s.log.WithFields(logrus.Fields{
		"asset_id": uploaded.AssetID,
		"backend":  s.deps.Storage.Name(),
		"size":     len(data),
	}).Info("Image uploaded")

	return s.CreateSession(ctx, models.CreateSessionRequest{ImageURL: uploaded.URL, AssetID: uploaded.AssetID})
}

func (s *editorService) newSession() (*editor.Session, error) {
	id := uuid.NewString()
	inbox := notify.NewInbox(notify.DefaultInboxSize)

	deps := editor.Deps{
		Remote:    s.deps.Remote,
		Poll:      s.deps.Poll,
		Notifier:  notify.Multi{notify.NewLogNotifier(), inbox},
		Events:    s.deps.Events,
		Persister: s.deps.Storage,
		Fetcher:   s.deps.Images,
		Verifier:  s.deps.Verifier,
		Validator: s.deps.Images,
		Clock:     s.now,
	}

	session := editor.New(id, deps)
	if err := s.deps.Sessions.Save(session); err != nil {
		session.Close()
		if errors.Is(err, repository.ErrRepositoryFull) {
			return nil, apperrors.NewBusyError("too many active sessions, try again later")
		}
		return nil, apperrors.NewInternalError("failed to store session", err)
	}

	s.mu.Lock()
	s.inboxes[id] = inbox
	s.mu.Unlock()
	return session, nil
}

// GetSession returns a live session
func (s *editorService) GetSession(id string) (*editor.Session, error) {
	session, err := s.deps.Sessions.Get(id)
	if err != nil {
		return nil, apperrors.NewNotFoundError("session not found", err)
	}
	return session, nil
}

// CloseSession tears a session down and forgets it
func (s *editorService) CloseSession(id string) error {
	session, err := s.deps.Sessions.Delete(id)
	if err != nil {
		return apperrors.NewNotFoundError("session not found", err)
	}
	session.Close()

	s.mu.Lock()
	delete(s.inboxes, id)
	s.mu.Unlock()

	s.log.WithField("session_id", id).Info("Session closed")
	return nil
}

func (s *editorService) discard(id string) {
	if err := s.CloseSession(id); err != nil {
		s.log.WithError(err).WithField("session_id", id).Debug("Discard of unknown session")
	}
}

// Notifications drains the pending notifications of a session
func (s *editorService) Notifications(id string) ([]notify.Notification, error) {
	s.mu.Lock()
	inbox, ok := s.inboxes[id]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", nil)
	}
	return inbox.Drain(), nil
}

// SweepIdle closes sessions idle for longer than the configured TTL
func (s *editorService) SweepIdle() int {
	if s.deps.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.deps.IdleTTL)

	closed := 0
	for _, session := range s.deps.Sessions.IdleSince(cutoff) {
		if session.Snapshot().Poll != nil {
			// an in-flight poll is bounded by its own policy
			continue
		}
		if err := s.CloseSession(session.ID()); err == nil {
			closed++
		}
	}
	if closed > 0 {
		s.log.WithField("closed", closed).Info("Idle sessions closed")
	}
	return closed
}

// ActiveSessions returns the number of live sessions
func (s *editorService) ActiveSessions() int {
	return s.deps.Sessions.Count()
}

// Shutdown closes every session
func (s *editorService) Shutdown() {
	for _, session := range s.deps.Sessions.List() {
		_ = s.CloseSession(session.ID())
	}
}
