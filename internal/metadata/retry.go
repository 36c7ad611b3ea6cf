package metadata

import (
	"context"
	"time"
)

const (
	retryAttempts = 3
	retryBaseWait = time.Second
	retryMaxWait  = 10 * time.Second
)

// withRetry runs fn up to retryAttempts times with exponential backoff
// between attempts (1s, 2s, 4s, ... capped at 10s). The last error is
// returned when all attempts fail; ctx cancellation aborts the wait.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			wait *= 2
			if wait > retryMaxWait {
				wait = retryMaxWait
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
