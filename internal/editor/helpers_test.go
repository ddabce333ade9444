package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/observer"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/remote"
	"go-image-editor/pkg/models"
)

const baseURL = "https://ik.example.com/demo/photo.jpg"

var fixedNow = time.UnixMilli(1700000000000)

type statusStep struct {
	status *remote.StatusResult
	err    error
}

var (
	stillProcessing = statusStep{status: &remote.StatusResult{}}
	transientErr    = statusStep{err: apperrors.NewTransientPollError("status returned 503", nil)}
)

func readyAt(url string) statusStep {
	return statusStep{status: &remote.StatusResult{Ready: true, Success: true, ProcessedURL: url}}
}

// fakeRemote scripts the processing service. Status replays steps and repeats
// the last one; with blockStatus set it waits for cancellation.
type fakeRemote struct {
	mu          sync.Mutex
	submitRes   *remote.SubmitResult
	submitErr   error
	submitHold  chan struct{}
	submits     []remote.SubmitRequest
	steps       []statusStep
	statusCalls int
	blockStatus bool
}

func (f *fakeRemote) Submit(ctx context.Context, req remote.SubmitRequest) (*remote.SubmitResult, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	hold, res, err := f.submitHold, f.submitRes, f.submitErr
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, apperrors.NewCancellationError("submit aborted", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	out := *res
	return &out, nil
}

func (f *fakeRemote) Status(ctx context.Context, target string) (*remote.StatusResult, error) {
	f.mu.Lock()
	f.statusCalls++
	n := f.statusCalls
	block := f.blockStatus
	var step statusStep
	if len(f.steps) > 0 {
		step = f.steps[len(f.steps)-1]
		if n <= len(f.steps) {
			step = f.steps[n-1]
		}
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, apperrors.NewCancellationError("status aborted", ctx.Err())
	}
	if step.err != nil {
		return nil, step.err
	}
	if step.status == nil {
		return &remote.StatusResult{}, nil
	}
	out := *step.status
	return &out, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// eventLog records events synchronously
type eventLog struct {
	mu     sync.Mutex
	events []observer.EditorEvent
}

func (e *eventLog) NotifyObservers(_ context.Context, ev observer.EditorEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) count(t observer.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.EventType == t {
			n++
		}
	}
	return n
}

type fixture struct {
	session *Session
	remote  *fakeRemote
	inbox   *notify.Inbox
	events  *eventLog
}

func (f *fixture) errors() []notify.Notification {
	var out []notify.Notification
	for _, n := range f.inbox.List() {
		if n.Severity == notify.SeverityError {
			out = append(out, n)
		}
	}
	return out
}

func testPolicy() poller.Policy {
	return poller.Policy{Interval: 2 * time.Millisecond, MaxAttempts: poller.DefaultMaxAttempts, MaxConsecutiveErrors: poller.DefaultMaxConsecutiveErrors}
}

func newFixture(t *testing.T, r *fakeRemote, mutate ...func(*Deps)) *fixture {
	t.Helper()
	if r == nil {
		r = &fakeRemote{}
	}
	f := &fixture{remote: r, inbox: notify.NewInbox(100), events: &eventLog{}}
	deps := Deps{
		Remote:   r,
		Poll:     testPolicy(),
		Notifier: f.inbox,
		Events:   f.events,
		Clock:    func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.session = New("", deps)
	t.Cleanup(f.session.Close)

	_, err := f.session.LoadImage("asset-1", baseURL)
	require.NoError(t, err)
	return f
}

func waitSettled(t *testing.T, s *Session) models.SessionSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return !snap.Processing && snap.Poll == nil && !snap.Image.IsLoading
	}, 5*time.Second, time.Millisecond)
	return s.Snapshot()
}

func lastEntry(snap models.SessionSnapshot) models.Transformation {
	return snap.History[len(snap.History)-1]
}
