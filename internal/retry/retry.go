// Package retry provides a bounded retry-with-backoff combinator shared by
// the vote-transfer and payout-finality paths.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy parameterizes Do. Backoff receives the zero-based attempt index of
// the attempt that just failed; Retryable decides whether an error is worth
// another attempt. A nil Retryable retries every error.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(error) bool
}

// Exponential returns a backoff function producing base<<attempt, capped at
// max. A max of zero means uncapped.
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << uint(attempt)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Do runs op up to p.MaxAttempts times, sleeping p.Backoff between failed
// attempts. It stops early when op succeeds, when an error is not
// retryable, or when ctx is done. The last error is returned with the
// attempt count attached.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			break
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry: %w (last error: %v)", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
	}

	if err := ctx.Err(); err != nil && lastErr == nil {
		return fmt.Errorf("retry: %w", err)
	}
	return fmt.Errorf("retry: %d attempts exhausted: %w", p.MaxAttempts, lastErr)
}
