package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// TxOptions describes one unit of work. Name only labels log lines.
// LockTimeout, when set, bounds every lock wait inside the transaction; a
// wait that runs out surfaces as a retryable lock_not_available error.
type TxOptions struct {
	Name           string
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
	BaseBackoff    time.Duration
	LockTimeout    time.Duration
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
		BaseBackoff:    50 * time.Millisecond,
	}
}

func (o TxOptions) Named(name string) TxOptions {
	o.Name = name
	return o
}

func (o TxOptions) WithLockTimeout(d time.Duration) TxOptions {
	o.LockTimeout = d
	return o
}

func begin(ctx context.Context, db *sqlx.DB, opts TxOptions) (*sqlx.Tx, error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if opts.LockTimeout > 0 {
		ms := fmt.Sprintf("%dms", opts.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	return tx, nil
}

// WithTransaction runs fn once. An error from fn rolls back and is returned
// unchanged so callers can match sentinel and typed errors.
func WithTransaction(ctx context.Context, db *sqlx.DB, opts TxOptions, fn func(*sqlx.Tx) error) error {
	tx, err := begin(ctx, db, opts)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithRetry runs fn in a fresh transaction per attempt, retrying
// serialization failures, deadlocks and lock timeouts with jittered
// exponential backoff. Any other error is returned after the first attempt.
func WithRetry(ctx context.Context, db *sqlx.DB, opts TxOptions, fn func(*sqlx.Tx) error) error {
	backoff := opts.BaseBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := WithTransaction(ctx, db, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt > opts.MaxRetries {
			return fmt.Errorf("%s: gave up after %d attempts: %w", opts.label(), attempt, err)
		}

		wait := backoff + time.Duration(rand.Int63n(int64(backoff/4)+1))
		log.Warn().Err(err).Str("tx", opts.label()).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying transaction")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		backoff *= 2
	}
}

func (o TxOptions) label() string {
	if o.Name == "" {
		return "tx"
	}
	return o.Name
}
