package persist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastDelays = []time.Duration{0, 0, 0, 0}

func TestRunWithRetriesStopsOnSuccess(t *testing.T) {
	calls := 0
	err := runWithRetries(context.Background(), fastDelays, isDeadlock, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgDeadlockDetected}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunWithRetriesNonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("unique violation")
	err := runWithRetries(context.Background(), fastDelays, isDeadlock, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRunWithRetriesExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	err := runWithRetries(context.Background(), fastDelays, isDeadlock, func() error {
		calls++
		return &pgconn.PgError{Code: pgSerializationFailure, Message: fmt.Sprintf("attempt %d", calls)}
	})
	require.Error(t, err)
	assert.Equal(t, len(fastDelays), calls)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "attempt 4", pgErr.Message)
}

func TestRunWithRetriesStopsWhenContextDies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := runWithRetries(ctx, []time.Duration{0, time.Minute}, isDeadlock, func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: pgDeadlockDetected}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "the minute-long delay is abandoned")
}

func TestIsDeadlock(t *testing.T) {
	assert.True(t, isDeadlock(&pgconn.PgError{Code: pgDeadlockDetected}))
	assert.True(t, isDeadlock(&pgconn.PgError{Code: pgSerializationFailure}))
	assert.True(t, isDeadlock(fmt.Errorf("swap: %w", &pgconn.PgError{Code: pgDeadlockDetected})), "wrapped errors unwrap")
	assert.False(t, isDeadlock(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isDeadlock(errors.New("deadlock detected")), "message text is not enough")
	assert.False(t, isDeadlock(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection refused")))
	assert.True(t, isTransient(&pgconn.PgError{Code: pgDeadlockDetected}))
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(fmt.Errorf("settle: %w", context.DeadlineExceeded)))
}
