package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Action is a single idempotent attempt. It reports done=true once the
// awaited condition holds. A non-nil error aborts polling immediately.
type Action func(ctx context.Context) (done bool, err error)

// Policy polls an Action at a fixed interval until it succeeds or the
// timeout elapses.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// New returns a Policy with the given polling interval and timeout.
func New(interval, timeout time.Duration) Policy {
	return Policy{Interval: interval, Timeout: timeout}
}

// Validate reports ErrNotConfigured unless both interval and timeout are positive.
func (p Policy) Validate() error {
	if p.Interval <= 0 || p.Timeout <= 0 {
		return fmt.Errorf("%w: interval=%s timeout=%s", ErrNotConfigured, p.Interval, p.Timeout)
	}

	return nil
}

// Poll invokes fn until it returns true, sleeping Interval between attempts.
// Returns ErrTimeout once Timeout has elapsed without success, and
// ErrCancelled if ctx is done while waiting. Errors returned by fn are
// passed through unmodified.
func (p Policy) Poll(ctx context.Context, fn Action) error {
	if err := p.Validate(); err != nil {
		return err
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.Interval), ctx)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		elapsed := time.Since(start)
		if elapsed >= p.Timeout {
			return fmt.Errorf("%w after %d attempt(s) in %s", ErrTimeout, attempt, elapsed.Truncate(time.Millisecond))
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
		}

		if err := sleep(ctx, next); err != nil {
			return err
		}
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	case <-timer.C:
		return nil
	}
}
