package poller

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/remote"
	"go-image-editor/pkg/models"
)

type step struct {
	status *remote.StatusResult
	err    error
	delay  time.Duration
}

// scriptedChecker replays steps in order and repeats the last one forever
type scriptedChecker struct {
	mu      sync.Mutex
	steps   []step
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	targets []string
}

func (c *scriptedChecker) Status(ctx context.Context, target string) (*remote.StatusResult, error) {
	n := int(c.calls.Add(1))
	cur := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		prev := c.maxSeen.Load()
		if cur <= prev || c.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	c.mu.Lock()
	c.targets = append(c.targets, target)
	s := c.steps[len(c.steps)-1]
	if n <= len(c.steps) {
		s = c.steps[n-1]
	}
	c.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, apperrors.NewCancellationError("aborted", ctx.Err())
		}
	}
	return s.status, s.err
}

var (
	processing = step{status: &remote.StatusResult{Ready: false}}
	ready      = step{status: &remote.StatusResult{Ready: true, Success: true, ResultURL: "https://cdn.example.com/out.jpg"}}
	flaky      = step{err: apperrors.NewTransientPollError("503", nil)}
)

func fastPolicy() Policy {
	return Policy{Interval: 2 * time.Millisecond, MaxAttempts: DefaultMaxAttempts, MaxConsecutiveErrors: DefaultMaxConsecutiveErrors}
}

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) onDone(_ *Session, r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

func (c *collector) all() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

func wait(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poll session did not finish")
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 10*time.Second, p.Interval)
	assert.Equal(t, 20, p.MaxAttempts)
	assert.Equal(t, 3, p.MaxConsecutiveErrors)
	assert.Equal(t, 200*time.Second, p.Ceiling())

	assert.Equal(t, p, New(&scriptedChecker{steps: []step{ready}}, Policy{}).Policy())
}

func TestPoller_ReadyOnThirdCheck(t *testing.T) {
	checker := &scriptedChecker{steps: []step{processing, processing, ready}}
	p := New(checker, fastPolicy(), WithClock(fixedClock))
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok-1", TransformationID: "t1", Kind: models.KindBackgroundRemoval}, c.onDone)
	wait(t, s)

	results := c.all()
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, OutcomeReady, r.Outcome)
	assert.Equal(t, "https://cdn.example.com/out.jpg?t=1700000000000", r.URL)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, "t1", r.Target.TransformationID)
	assert.Equal(t, s.ID(), r.SessionID)
	assert.EqualValues(t, 3, checker.calls.Load())
	assert.Nil(t, p.Active())
}

func TestPoller_ReadyFallsBackToTarget(t *testing.T) {
	checker := &scriptedChecker{steps: []step{{status: &remote.StatusResult{Ready: true, Success: true}}}}
	p := New(checker, fastPolicy(), WithClock(fixedClock))
	c := &collector{}

	s := p.Start(Target{PollTarget: "https://cdn.example.com/a.jpg?tr=e-bgremove"}, c.onDone)
	wait(t, s)

	r := c.all()[0]
	assert.Equal(t, OutcomeReady, r.Outcome)
	assert.True(t, strings.HasPrefix(r.URL, "https://cdn.example.com/a.jpg?"))
	assert.Contains(t, r.URL, "t=1700000000000")
	assert.Contains(t, r.URL, "tr=e-bgremove")
}

func TestPoller_TransientErrorsBecomePermanent(t *testing.T) {
	checker := &scriptedChecker{steps: []step{flaky}}
	p := New(checker, fastPolicy())
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	wait(t, s)

	r := c.all()[0]
	assert.Equal(t, OutcomePermanentFailure, r.Outcome)
	assert.Equal(t, 3, r.Attempts)
	assert.True(t, apperrors.IsType(r.Err, apperrors.ErrorTypePermanentPoll))
}

func TestPoller_TransientCounterResetsOnProgress(t *testing.T) {
	checker := &scriptedChecker{steps: []step{flaky, flaky, processing, flaky, flaky, ready}}
	p := New(checker, fastPolicy(), WithClock(fixedClock))
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	wait(t, s)

	r := c.all()[0]
	assert.Equal(t, OutcomeReady, r.Outcome)
	assert.Equal(t, 6, r.Attempts)
}

func TestPoller_ServiceReportedKinds(t *testing.T) {
	tests := []struct {
		name    string
		steps   []step
		outcome Outcome
	}{
		{
			name:    "permanent error kind",
			steps:   []step{{status: &remote.StatusResult{ErrorKind: remote.ErrorKindPermanent, Message: "unsupported"}}},
			outcome: OutcomePermanentFailure,
		},
		{
			name:    "ready without success",
			steps:   []step{{status: &remote.StatusResult{Ready: true, Success: false}}},
			outcome: OutcomePermanentFailure,
		},
		{
			name:    "permanent transport error",
			steps:   []step{{err: apperrors.NewPermanentPollError("404", nil)}},
			outcome: OutcomePermanentFailure,
		},
		{
			name:    "transient error kind then ready",
			steps:   []step{{status: &remote.StatusResult{ErrorKind: remote.ErrorKindTransient}}, ready},
			outcome: OutcomeReady,
		},
		{
			name:    "foreign cancellation is transient",
			steps:   []step{{err: apperrors.NewCancellationError("upstream reset", context.Canceled)}, ready},
			outcome: OutcomeReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&scriptedChecker{steps: tt.steps}, fastPolicy())
			c := &collector{}
			s := p.Start(Target{PollTarget: "tok"}, c.onDone)
			wait(t, s)
			require.Len(t, c.all(), 1)
			assert.Equal(t, tt.outcome, c.all()[0].Outcome)
		})
	}
}

func TestPoller_TimeoutAfterExactlyMaxAttempts(t *testing.T) {
	checker := &scriptedChecker{steps: []step{processing}}
	p := New(checker, fastPolicy())
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	wait(t, s)

	r := c.all()[0]
	assert.Equal(t, OutcomeTimeout, r.Outcome)
	assert.Equal(t, DefaultMaxAttempts, r.Attempts)
	assert.True(t, apperrors.IsType(r.Err, apperrors.ErrorTypeTimeout))

	// no stray checks after the terminal state
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, DefaultMaxAttempts, checker.calls.Load())
}

func TestPoller_ReadyOnLastAttempt(t *testing.T) {
	steps := make([]step, 0, DefaultMaxAttempts)
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		steps = append(steps, processing)
	}
	steps = append(steps, ready)

	p := New(&scriptedChecker{steps: steps}, fastPolicy())
	c := &collector{}
	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	wait(t, s)

	r := c.all()[0]
	assert.Equal(t, OutcomeReady, r.Outcome)
	assert.Equal(t, DefaultMaxAttempts, r.Attempts)
}

func TestPoller_SkipsTicksWhileCheckInFlight(t *testing.T) {
	slow := step{status: &remote.StatusResult{Ready: false}, delay: 30 * time.Millisecond}
	checker := &scriptedChecker{steps: []step{slow, slow, ready}}
	p := New(checker, fastPolicy())
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	wait(t, s)

	assert.Equal(t, OutcomeReady, c.all()[0].Outcome)
	assert.EqualValues(t, 1, checker.maxSeen.Load())
	assert.EqualValues(t, 3, checker.calls.Load())
	assert.Greater(t, s.SkippedTicks(), 0)
}

func TestPoller_CancelAbortsInFlightCheck(t *testing.T) {
	checker := &scriptedChecker{steps: []step{{status: &remote.StatusResult{}, delay: time.Minute}}}
	p := New(checker, fastPolicy())
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	require.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, time.Millisecond)

	p.Cancel()
	p.Cancel()
	s.Cancel()
	wait(t, s)

	results := c.all()
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeCancelled, results[0].Outcome)
	assert.True(t, apperrors.IsCancellation(results[0].Err))
	assert.Nil(t, p.Active())

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, checker.calls.Load())
}

func TestPoller_StartCancelsPreviousSession(t *testing.T) {
	first := &collector{}
	second := &collector{}
	checker := &scriptedChecker{steps: []step{{status: &remote.StatusResult{}, delay: time.Minute}}}
	p := New(checker, fastPolicy())

	s1 := p.Start(Target{PollTarget: "first"}, first.onDone)
	require.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, time.Millisecond)

	checker.mu.Lock()
	checker.steps = []step{ready}
	checker.mu.Unlock()
	checker.calls.Store(0)

	s2 := p.Start(Target{PollTarget: "second"}, second.onDone)
	wait(t, s1)
	wait(t, s2)

	require.Len(t, first.all(), 1)
	assert.Equal(t, OutcomeCancelled, first.all()[0].Outcome)
	require.Len(t, second.all(), 1)
	assert.Equal(t, OutcomeReady, second.all()[0].Outcome)
	assert.NotEqual(t, s1.ID(), s2.ID())
}

func TestPoller_CancelAfterFinishIsNoop(t *testing.T) {
	p := New(&scriptedChecker{steps: []step{ready}}, fastPolicy())
	c := &collector{}

	s := p.Start(Target{PollTarget: "tok"}, c.onDone)
	wait(t, s)
	s.Cancel()
	p.Cancel()

	require.Len(t, c.all(), 1)
	assert.Equal(t, OutcomeReady, c.all()[0].Outcome)
}
