package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTxDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	return conn
}

func TestWithRetryRepeatsConflicts(t *testing.T) {
	conn := setupTxDB(t)

	calls := 0
	retries := 0
	err := WithRetry(context.Background(), conn, RetryOptions{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		OnRetry:     func(int, error) { retries++ },
	}, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	conn := setupTxDB(t)

	calls := 0
	err := WithRetry(context.Background(), conn, RetryOptions{MaxAttempts: 2}, func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 2, calls)
}

func TestWithRetryDoesNotRepeatDomainErrors(t *testing.T) {
	conn := setupTxDB(t)
	domainErr := errors.New("insufficient_credits")

	calls := 0
	err := WithRetry(context.Background(), conn, RetryOptions{MaxAttempts: 5}, func(tx *gorm.DB) error {
		calls++
		return domainErr
	})

	assert.ErrorIs(t, err, domainErr)
	assert.Equal(t, 1, calls)
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	conn := setupTxDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithRetry(ctx, conn, RetryOptions{MaxAttempts: 3, Backoff: time.Second}, func(tx *gorm.DB) error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
