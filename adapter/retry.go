package adapter

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry; it doubles per attempt.
const DefaultBackoff = 500 * time.Millisecond

// Retry calls attempt once plus retries more times with exponential backoff
// until it succeeds. A nil retriable treats every error as retriable.
// The returned error names the adapter and wraps the last failure.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration,
	retriable func(error) bool, attempt func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	attempts := 1 + retries
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff << uint(i-1)):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if retriable != nil && !retriable(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
