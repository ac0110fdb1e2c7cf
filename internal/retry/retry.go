// Package retry provides the shared attempt-budget and backoff logic used by
// the discovery, decision and checkout stages.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds retries for one operation. Delay grows linearly with the
// attempt number (backoff × attempt), matching the scrape stage's
// 5s × retry_count schedule when Backoff is 5s.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff is the base delay multiplied by the retry number.
	Backoff time.Duration
	// Retryable reports whether an error is worth retrying. A nil
	// classifier retries every error.
	Retryable func(error) bool
}

// Delay returns the wait before the given retry (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff * time.Duration(attempt)
}

// Do runs op, retrying per the policy. It returns nil on the first success,
// the last error once the budget is exhausted, or the context error if the
// context is cancelled while waiting.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			if p.MaxRetries > 0 {
				return fmt.Errorf("gave up after %d attempts: %w", attempt+1, lastErr)
			}
			return lastErr
		}

		timer := time.NewTimer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
