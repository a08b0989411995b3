package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrRetriesExhausted = errors.New("transaction_retries_exhausted")

type RetryOptions struct {
	MaxAttempts int
	Backoff     time.Duration
	// OnRetry is called before each repeated attempt.
	OnRetry func(attempt int, err error)
}

// WithRetry runs fn inside a transaction and repeats the whole transaction
// when it fails with a retryable conflict. Any other error is returned as is.
func WithRetry(ctx context.Context, conn *gorm.DB, opts RetryOptions, fn func(tx *gorm.DB) error) error {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr)
			}
			if err := sleepCtx(ctx, opts.Backoff*time.Duration(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = conn.WithContext(ctx).Transaction(fn)
		if lastErr == nil {
			return nil
		}
		if !IsRetryableErr(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
