package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/folio/pkg/core"
)

// RetryPolicy bounds TaskContext.Retry. Zero fields take the defaults.
type RetryPolicy struct {
	Attempts       int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is 3 attempts, 200ms doubling up to 5s, 30s per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

// delay returns the wait before retry n (1-based).
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Retry runs op under the engine's retry policy. Only transient errors
// and attempt timeouts are retried; anything else is returned at once.
// Each attempt is recorded in the audit trail.
func (tc *TaskContext) Retry(name string, op func(ctx context.Context) error) error {
	p := tc.engine.retry

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			wait := p.delay(attempt - 1)
			tc.Event(ActionRetryWait, fmt.Sprintf("%s: %s", name, wait))
			if err := sleepContext(tc.ctx, wait); err != nil {
				return err
			}
			if err := tc.Checkpoint(); err != nil {
				return err
			}
		}

		actx, cancel := context.WithTimeout(tc.ctx, p.AttemptTimeout)
		err = op(actx)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded) && tc.ctx.Err() == nil
		cancel()

		if err == nil {
			tc.Event(ActionAttemptSucceeded, fmt.Sprintf("%s attempt %d", name, attempt))
			return nil
		}
		tc.Event(ActionAttemptFailed, fmt.Sprintf("%s attempt %d: %v", name, attempt, err))
		if tc.ctx.Err() != nil {
			return context.Cause(tc.ctx)
		}
		if !core.IsTransient(err) && !timedOut {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, p.Attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
