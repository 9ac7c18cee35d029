// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts. It is shared by the queue publisher and the
// readiness probe.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrInvalidPolicy is returned when a Policy allows no attempts.
var ErrInvalidPolicy = errors.New("retry policy must allow at least one attempt")

// Policy bounds a retry loop.
type Policy struct {
	Attempts int           // total attempts, including the first
	Delay    time.Duration // wait between consecutive attempts
}

// NotifyFunc is called after every failed attempt that will be retried.
type NotifyFunc func(err error, attempt int, next time.Duration)

// Permanent marks err as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Permanent error, ctx is done or
// the policy is exhausted. It returns the number of attempts made and the
// last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify NotifyFunc) (int, error) {
	if p.Attempts < 1 {
		return 0, ErrInvalidPolicy
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(p.Attempts-1))
	b = backoff.WithContext(b, ctx)

	attempts := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		return op(ctx)
	}
	onRetry := func(err error, next time.Duration) {
		if notify != nil {
			notify(err, attempts, next)
		}
	}

	err := backoff.RetryNotify(operation, b, onRetry)
	return attempts, err
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
