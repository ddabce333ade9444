// Package poller runs the bounded, cancellable loop that waits for the
// processing service to finish an asynchronous transformation.
package poller

import "time"

// Contract values for every poll session. The interval comfortably exceeds a
// typical multi-second status request while keeping detection latency low.
const (
	DefaultInterval             = 10 * time.Second
	DefaultMaxAttempts          = 20
	DefaultMaxConsecutiveErrors = 3
)

// Policy bounds one poll session. The wall-clock ceiling is MaxAttempts * Interval.
type Policy struct {
	Interval             time.Duration
	MaxAttempts          int
	MaxConsecutiveErrors int
}

// DefaultPolicy returns the contract policy
func DefaultPolicy() Policy {
	return Policy{
		Interval:             DefaultInterval,
		MaxAttempts:          DefaultMaxAttempts,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// Ceiling is the longest a session can run before timing out. It holds only
// while a status check fits within one interval; ticks skipped behind a slower
// check do not count as attempts.
func (p Policy) Ceiling() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Interval
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxConsecutiveErrors <= 0 {
		p.MaxConsecutiveErrors = d.MaxConsecutiveErrors
	}
	return p
}
