package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes that mean "run the transaction again".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// deadlockDelays paces in-place transaction retries: one immediate attempt,
// then three more.
var deadlockDelays = []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}

// settlementDelays paces whole-settlement attempts around transient failures
// the deadlock codes don't cover (connection loss, failover).
var settlementDelays = []time.Duration{0, time.Second, 3 * time.Second}

func isDeadlock(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgDeadlockDetected || pgErr.Code == pgSerializationFailure
}

// isTransient gates the outer settlement retry: everything is worth another
// attempt except the context dying.
func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// runWithRetries runs fn once per delay entry, sleeping first (a zero delay
// runs immediately). It stops early on success, on a non-retryable error, or
// when the context dies mid-wait; otherwise the last error comes back.
func runWithRetries(ctx context.Context, delays []time.Duration, retryable func(error) bool, fn func() error) error {
	var lastErr error
	for _, delay := range delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// withTxRetry opens a transaction around fn, committing on success and
// rolling back otherwise, and reruns the whole thing on deadlock or
// serialization failure. fn must be safe to run repeatedly; it sees a fresh
// transaction each attempt.
func (e *Exchange) withTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return runWithRetries(ctx, deadlockDelays, isDeadlock, func() error {
		tx, err := e.db.Pool.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}
