package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff applied to transactions that
// fail with a serialization conflict (spec §4.5).
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches spec §4.5's defaults exactly.
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:   50 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	MaxAttempts: 3,
}

func (p RetryPolicy) backoffFor(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// runWithRetry retries op while isRetryable(err) is true, up to policy's
// MaxAttempts, sleeping per the exponential backoff schedule between
// attempts. Non-retryable errors propagate immediately.
func runWithRetry(ctx context.Context, policy RetryPolicy, isRetryable func(error) bool, op func() error) error {
	attempt := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err // retried by backoff.Retry
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(attempt, policy.backoffFor(ctx))
}
