package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// instantTimer fires immediately regardless of the requested duration.
type instantTimer struct {
	ch chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{ch: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(time.Duration) {
	select {
	case t.ch <- time.Now():
	default:
	}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.ch
}

func TestPolicy_SucceedsAfterRetries(t *testing.T) {
	policy := NewPolicy(3, time.Second).WithTimer(newInstantTimer())

	attempts := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestPolicy_CapsAttempts(t *testing.T) {
	policy := NewPolicy(3, time.Second).WithTimer(newInstantTimer())

	failure := errors.New("still failing")
	attempts := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected final error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestPolicy_PermanentStopsImmediately(t *testing.T) {
	policy := NewPolicy(5, time.Second).WithTimer(newInstantTimer())

	attempts := 0
	hard := errors.New("hard failure")
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(hard)
	})
	if !errors.Is(err, hard) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestPolicy_ContextCancellation(t *testing.T) {
	policy := NewPolicy(10, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func(context.Context) error {
		attempts++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if attempts < 1 {
		t.Fatalf("expected at least one attempt")
	}
}
