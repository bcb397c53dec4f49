package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy executes an operation with a bounded, fixed-interval retry schedule.
// Attempts are capped explicitly; there is no unbounded recursion. The timer
// is injectable so tests can drive the schedule with a virtual clock.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	timer       backoff.Timer
}

// NewPolicy builds a retry policy with the supplied bounds.
func NewPolicy(maxAttempts int, interval time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if interval < 0 {
		interval = 0
	}
	return Policy{MaxAttempts: maxAttempts, Interval: interval}
}

// WithTimer injects a custom timer, primarily for tests.
func (p Policy) WithTimer(timer backoff.Timer) Policy {
	p.timer = timer
	return p
}

// Do runs the operation until it succeeds, the attempt cap is reached, or the
// context is cancelled. The last error is returned when all attempts fail.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	if op == nil {
		return fmt.Errorf("retry operation is nil")
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.MaxAttempts-1)),
		ctx,
	)

	operation := func() error {
		return op(ctx)
	}

	return backoff.RetryNotifyWithTimer(operation, schedule, nil, p.timer)
}

// Permanent marks an error as non-retryable; Do stops immediately on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
