package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-image-editor/internal/logger"
	"go-image-editor/internal/remote"
	"go-image-editor/pkg/models"
)

// StatusChecker is the status half of the processing service
type StatusChecker interface {
	Status(ctx context.Context, target string) (*remote.StatusResult, error)
}

// Outcome is the terminal state of a poll session
type Outcome string

const (
	OutcomeReady            Outcome = "ready"
	OutcomePermanentFailure Outcome = "permanent_failure"
	OutcomeTimeout          Outcome = "timeout"
	OutcomeCancelled        Outcome = "cancelled"
)

// Target identifies what a session polls and which history entry it resolves.
// TransformationID is empty for confirmation polls of externally supplied URLs.
type Target struct {
	PollTarget       string
	ResultURL        string
	TransformationID string
	Kind             models.Kind
}

// Result is delivered exactly once per session
type Result struct {
	SessionID string
	Target    Target
	Outcome   Outcome
	URL       string
	Attempts  int
	Message   string
	Err       error
}

// CompletionFunc receives the terminal result of a session
type CompletionFunc func(s *Session, r Result)

// Option customises a Poller
type Option func(*Poller)

// WithClock overrides the clock used for cache-bust parameters
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// Poller owns at most one active Session at a time
type Poller struct {
	checker StatusChecker
	policy  Policy
	now     func() time.Time
	log     *logrus.Entry

	mu     sync.Mutex
	active *Session
}

// New creates a poller. Zero policy fields fall back to the contract values.
func New(checker StatusChecker, policy Policy, opts ...Option) *Poller {
	p := &Poller{
		checker: checker,
		policy:  policy.normalized(),
		now:     time.Now,
		log:     logger.ForComponent("poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the effective policy
func (p *Poller) Policy() Policy {
	return p.policy
}

// Start cancels any active session, then begins polling target. The first
// status check is issued immediately, the rest every Policy.Interval.
func (p *Poller) Start(target Target, onDone CompletionFunc) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		p.active.Cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		target:  target,
		poller:  p,
		ctx:     ctx,
		cancel:  cancel,
		onDone:  onDone,
		done:    make(chan struct{}),
		results: make(chan checkOutcome, 1),
	}
	s.log = p.log.WithFields(logrus.Fields{
		"poll_session":      s.id,
		"poll_target":       target.PollTarget,
		"transformation_id": target.TransformationID,
		"kind":              target.Kind,
	})
	p.active = s

	s.log.WithFields(logrus.Fields{
		"interval":     p.policy.Interval,
		"max_attempts": p.policy.MaxAttempts,
	}).Info("Poll session started")

	go s.run()
	return s
}

// Cancel stops the active session, if any. Safe to call repeatedly.
func (p *Poller) Cancel() {
	p.mu.Lock()
	s := p.active
	p.active = nil
	p.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
}

// Active returns the running session or nil
func (p *Poller) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Poller) release(s *Session) {
	p.mu.Lock()
	if p.active == s {
		p.active = nil
	}
	p.mu.Unlock()
}
