// Package retry wraps sethvargo/go-retry with the pipeline's retry
// convention: bounded attempts, exponential backoff from a base delay,
// and a name used in the returned error.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Do runs fn up to maxAttempts times with exponential backoff starting
// at baseDelay. Every error from fn is treated as retryable; the last
// error is returned wrapped with the operation name.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, name string, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	b := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewExponential(baseDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, err)
	}
	return nil
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, maxAttempts, baseDelay, name, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
