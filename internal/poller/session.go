package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/remote"
	"go-image-editor/internal/urlchain"
)

type checkOutcome struct {
	status *remote.StatusResult
	err    error
}

// Session is one polling loop: Polling -> Ready | PermanentFailure | Timeout | Cancelled.
type Session struct {
	id     string
	target Target
	poller *Poller
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	onDone CompletionFunc

	// owned by the run goroutine
	consecutiveErrors int
	results           chan checkOutcome

	attempts atomic.Int32
	inFlight atomic.Bool
	skipped  atomic.Int32

	mu       sync.Mutex
	finished bool
	done     chan struct{}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Target returns what the session polls
func (s *Session) Target() Target { return s.target }

// Attempts returns how many status checks have been issued
func (s *Session) Attempts() int { return int(s.attempts.Load()) }

// SkippedTicks returns how many ticks were skipped because a check was in flight
func (s *Session) SkippedTicks() int { return int(s.skipped.Load()) }

// Done is closed once the loop has exited and the completion callback returned
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the loop has exited
func (s *Session) Wait() { <-s.done }

// Cancel aborts any in-flight check and stops the ticker. Once Cancel returns the
// session can only finish as cancelled. Safe to call repeatedly.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
}

func (s *Session) run() {
	defer close(s.done)

	policy := s.poller.policy
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	s.launch()
	for {
		select {
		case <-s.ctx.Done():
			s.finish(Result{Outcome: OutcomeCancelled, Err: apperrors.NewCancellationError("poll session cancelled", s.ctx.Err())})
			return
		case <-ticker.C:
			if s.ctx.Err() != nil {
				continue
			}
			s.launch()
		case out := <-s.results:
			s.inFlight.Store(false)
			if r, terminal := s.evaluate(out); terminal {
				s.finish(r)
				return
			}
		}
	}
}

// launch issues one status check unless one is already in flight or the
// attempt budget is spent.
func (s *Session) launch() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Debug("Status check still in flight, skipping tick")
		return
	}
	if int(s.attempts.Load()) >= s.poller.policy.MaxAttempts {
		s.inFlight.Store(false)
		return
	}
	attempt := s.attempts.Add(1)
	s.log.WithField("attempt", attempt).Debug("Checking status")

	go func() {
		status, err := s.poller.checker.Status(s.ctx, s.target.PollTarget)
		s.results <- checkOutcome{status: status, err: err}
	}()
}

func (s *Session) evaluate(out checkOutcome) (Result, bool) {
	attempts := int(s.attempts.Load())

	if s.ctx.Err() != nil {
		return Result{Outcome: OutcomeCancelled, Err: apperrors.NewCancellationError("poll session cancelled", s.ctx.Err())}, true
	}

	if out.err != nil {
		if apperrors.IsType(out.err, apperrors.ErrorTypePermanentPoll) {
			return Result{Outcome: OutcomePermanentFailure, Message: "processing failed", Err: out.err}, true
		}
		return s.transient(out.err, attempts)
	}

	status := out.status
	if status == nil {
		return s.transient(apperrors.NewTransientPollError("empty status response", nil), attempts)
	}

	switch {
	case status.ErrorKind == remote.ErrorKindPermanent:
		return Result{Outcome: OutcomePermanentFailure, Message: status.Message,
			Err: apperrors.NewPermanentPollError(nonEmpty(status.Message, "processing failed"), nil)}, true
	case status.ErrorKind == remote.ErrorKindTransient:
		return s.transient(apperrors.NewTransientPollError(nonEmpty(status.Message, "service reported a transient error"), nil), attempts)
	case status.Ready && status.Success:
		resolved := status.ResolvedURL()
		if resolved == "" {
			resolved = nonEmpty(s.target.ResultURL, s.target.PollTarget)
		}
		return Result{Outcome: OutcomeReady, URL: urlchain.WithCacheBust(resolved, s.poller.now())}, true
	case status.Ready:
		return Result{Outcome: OutcomePermanentFailure, Message: status.Message,
			Err: apperrors.NewPermanentPollError(nonEmpty(status.Message, "processing failed"), nil)}, true
	}

	// Still processing
	s.consecutiveErrors = 0
	return s.exhausted(attempts)
}

func (s *Session) transient(err error, attempts int) (Result, bool) {
	s.consecutiveErrors++
	s.log.WithError(err).WithFields(logrus.Fields{
		"attempt":            attempts,
		"consecutive_errors": s.consecutiveErrors,
	}).Debug("Transient status check failure")

	if s.consecutiveErrors >= s.poller.policy.MaxConsecutiveErrors {
		return Result{Outcome: OutcomePermanentFailure, Message: "too many consecutive status check failures",
			Err: apperrors.NewPermanentPollError("too many consecutive status check failures", err)}, true
	}
	return s.exhausted(attempts)
}

func (s *Session) exhausted(attempts int) (Result, bool) {
	if attempts >= s.poller.policy.MaxAttempts {
		return Result{Outcome: OutcomeTimeout, Message: "processing timeout, try again",
			Err: apperrors.NewTimeoutError("processing timeout, try again", nil)}, true
	}
	return Result{}, false
}

// finish delivers r exactly once. A session cancelled before this point always
// reports cancellation.
func (s *Session) finish(r Result) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if r.Outcome != OutcomeCancelled && s.ctx.Err() != nil {
		r = Result{Outcome: OutcomeCancelled, Err: apperrors.NewCancellationError("poll session cancelled", s.ctx.Err())}
	}
	s.finished = true
	s.cancel()
	s.mu.Unlock()

	r.SessionID = s.id
	r.Target = s.target
	r.Attempts = s.Attempts()
	s.poller.release(s)

	entry := s.log.WithFields(logrus.Fields{"outcome": r.Outcome, "attempts": r.Attempts})
	switch r.Outcome {
	case OutcomeReady:
		entry.Info("Poll session resolved")
	case OutcomeCancelled:
		entry.Debug("Poll session cancelled")
	default:
		entry.WithError(r.Err).Warn("Poll session failed")
	}

	if s.onDone != nil {
		s.onDone(s, r)
	}
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
