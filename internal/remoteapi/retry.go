package remoteapi

import (
	"context"
	"time"
)

// RetryPolicy parameterizes retry-with-backoff: delay = Base * 2^attempt,
// capped at Max.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

var defaultRetry = RetryPolicy{MaxAttempts: 3, Base: 300 * time.Millisecond, Max: 5 * time.Second}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// withRetry runs fn up to p.MaxAttempts times, backing off between
// attempts. Only errors accepted by retryable are retried.
func withRetry(ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.delay(attempt - 1)):
			case <-ctx.Done():
				return &TransientError{Op: "retry wait", Err: ctx.Err()}
			}
		}
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
