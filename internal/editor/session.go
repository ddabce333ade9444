// Package editor coordinates one image-editing session: it owns the history,
// the operation gate, the working image URL and the completion poller.
package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/history"
	"go-image-editor/internal/logger"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/observer"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/remote"
	"go-image-editor/internal/urlchain"
	"go-image-editor/pkg/models"
)

// Persister stores the final image
type Persister interface {
	Persist(ctx context.Context, imageURL string, transformations []models.Transformation, metadata map[string]string) (*models.SaveResult, error)
}

// Fetcher downloads image bytes
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) (*models.ImageData, error)
}

// Verifier runs the optional post-completion check. done is called at most once,
// from another goroutine.
type Verifier interface {
	Verify(transformationID, originalURL, resultURL string, done func(models.VerificationReport)) bool
}

// URLValidator accepts or rejects base image URLs
type URLValidator interface {
	ValidateImageURL(imageURL string) error
}

// EventSink receives lifecycle events
type EventSink interface {
	NotifyObservers(ctx context.Context, event observer.EditorEvent)
}

// Deps are the collaborators of a Session. Remote is required.
type Deps struct {
	Remote    remote.Service
	Poll      poller.Policy
	Notifier  notify.Notifier
	Events    EventSink
	Persister Persister
	Fetcher   Fetcher
	Verifier  Verifier
	Validator URLValidator
	Clock     func() time.Time
}

// Session is safe for concurrent use. Every state transition happens under mu;
// remote calls run outside it and re-read state once they return.
type Session struct {
	id        string
	remote    remote.Service
	polls     *poller.Poller
	notifier  notify.Notifier
	events    EventSink
	persister Persister
	fetcher   Fetcher
	verifier  Verifier
	validator URLValidator
	now       func() time.Time
	log       *logrus.Entry

	mu            sync.Mutex
	hist          *history.History
	image         models.WorkingImage
	identity      string
	op            uint64
	nextOp        uint64
	poll          *poller.Session
	verifications map[string]models.VerificationReport
	updatedAt     time.Time
	closed        bool
}

// New creates an empty session. An empty id is replaced by a fresh uuid.
func New(id string, deps Deps) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	n := deps.Notifier
	if n == nil {
		n = notify.NewLogNotifier()
	}

	s := &Session{
		id:            id,
		remote:        deps.Remote,
		polls:         poller.New(deps.Remote, deps.Poll, poller.WithClock(now)),
		notifier:      n,
		events:        deps.Events,
		persister:     deps.Persister,
		fetcher:       deps.Fetcher,
		verifier:      deps.Verifier,
		validator:     deps.Validator,
		now:           now,
		log:           logger.ForComponent("editor").WithField("session_id", id),
		hist:          history.New(),
		verifications: make(map[string]models.VerificationReport),
	}
	s.updatedAt = now()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// LastActivity returns when the session state last changed
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// CanPerformOperation reports the gate: no operation in flight, nothing
// processing and no image loading.
func (s *Session) CanPerformOperation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gateOpenLocked()
}

// Snapshot returns an immutable view of the session
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close tears the session down through the same path as an explicit cancel.
// Safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelPollLocked("session closed")
	s.op = 0
	s.closed = true
	s.touchLocked()
	s.publishLocked(observer.EditorEvent{EventType: observer.SessionClosed, Success: true})
	s.log.Info("Session closed")
}

func (s *Session) gateOpenLocked() bool {
	return s.op == 0 && !s.hist.AnyProcessing() && !s.image.IsLoading
}

// usableLocked rejects calls on closed sessions and, when requireImage is set,
// sessions without a base image.
func (s *Session) usableLocked(requireImage bool) error {
	if s.closed {
		return apperrors.NewNotFoundError("session closed", nil)
	}
	if requireImage && s.image.OriginalURL == "" {
		return apperrors.NewValidationError("no image loaded", nil)
	}
	return nil
}

// acquireLocked closes the gate on behalf of one operation. The returned token
// is needed to release it, so a stale release cannot reopen a newer operation's gate.
func (s *Session) acquireLocked() (uint64, error) {
	if !s.gateOpenLocked() {
		return 0, s.busyLocked()
	}
	s.nextOp++
	s.op = s.nextOp
	s.touchLocked()
	return s.op, nil
}

func (s *Session) releaseLocked(token uint64) {
	if s.op == token {
		s.op = 0
		s.touchLocked()
	}
}

func (s *Session) release(token uint64) {
	s.mu.Lock()
	s.releaseLocked(token)
	s.mu.Unlock()
}

func (s *Session) busyLocked() error {
	err := apperrors.NewBusyError("please wait for the current operation to finish")
	s.notifyLocked(notify.SeverityWarning, "Please wait for the current operation to finish")
	return err
}

func (s *Session) touchLocked() {
	s.updatedAt = s.now()
}

// urlAtCursorLocked resolves the working URL for the current cursor, preferring
// the entry's own result.
func (s *Session) urlAtCursorLocked() string {
	cursor := s.hist.Cursor()
	if cursor == history.OriginCursor {
		return s.image.OriginalURL
	}
	if e, ok := s.hist.At(cursor); ok && e.Completed() && e.ResultURL != "" {
		return e.ResultURL
	}
	return urlchain.BuildUpTo(s.image.OriginalURL, s.hist.Entries(), cursor)
}

func (s *Session) snapshotLocked() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:                  s.id,
		Image:               s.image,
		History:             s.hist.Entries(),
		Cursor:              s.hist.Cursor(),
		CanPerformOperation: !s.closed && s.gateOpenLocked(),
		OperationInProgress: s.op != 0,
		Processing:          s.hist.AnyProcessing(),
		CanUndo:             s.hist.CanUndo(),
		CanRedo:             s.hist.CanRedo(),
		UpdatedAt:           s.updatedAt,
	}
	if s.poll != nil {
		t := s.poll.Target()
		snap.Poll = &models.PollStatus{
			SessionID:        s.poll.ID(),
			TargetURL:        t.PollTarget,
			TransformationID: t.TransformationID,
			Kind:             t.Kind,
			AttemptsMade:     s.poll.Attempts(),
		}
	}
	if len(s.verifications) > 0 {
		snap.Verifications = make(map[string]models.VerificationReport, len(s.verifications))
		for k, v := range s.verifications {
			snap.Verifications[k] = v
		}
	}
	return snap
}

// notifyLocked must not be given a notifier that calls back into the session.
func (s *Session) notifyLocked(severity notify.Severity, message string) {
	s.notifier.Notify(notify.Notification{
		SessionID: s.id,
		Message:   message,
		Severity:  severity,
		Timestamp: s.now(),
	})
}

func (s *Session) publishLocked(event observer.EditorEvent) {
	if s.events == nil {
		return
	}
	event.SessionID = s.id
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	s.events.NotifyObservers(context.Background(), event)
}

func (s *Session) entryEvent(t observer.EventType, e models.Transformation, err error) observer.EditorEvent {
	event := observer.EditorEvent{
		EventType:        t,
		TransformationID: e.ID,
		Kind:             string(e.Kind),
		ImageURL:         e.ResultURL,
		Success:          err == nil,
	}
	if !e.CreatedAt.IsZero() && t != observer.OperationStarted {
		event.ProcessingTime = s.now().Sub(e.CreatedAt)
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return event
}

// userMessage extracts the user-facing part of err
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
