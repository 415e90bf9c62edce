package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"customer-wallet-ledger/config"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLSTATE codes that mean "nothing was written, run it again".
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateQueryCanceled        = "57014"
	sqlStateUniqueViolation      = "23505"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
// Every unit of work runs under a timeout and is retried with exponential
// backoff on serialization failures, deadlocks and lock timeouts.
type Transactor struct {
	pool       Pool
	timeout    time.Duration
	maxRetries uint64
	log        zerolog.Logger
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, cfg config.LedgerConfig, log zerolog.Logger) *Transactor {
	return &Transactor{
		pool:       pool,
		timeout:    cfg.TxTimeout,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
}

// WithinTx runs fn in a transaction and commits it. fn may run more than once.
func (t *Transactor) WithinTx(ctx context.Context, opts ports.TxOptions, fn ports.TxFunc) error {
	attempt := 0
	op := func() error {
		attempt++
		err := t.runOnce(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			t.log.Debug().Err(err).Int("attempt", attempt).Msg("transaction conflict, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), t.maxRetries), ctx))
	switch {
	case err == nil:
		return nil
	case isRetryable(err):
		t.log.Warn().Err(err).Int("attempts", attempt).Msg("transaction retries exhausted")
		return apperror.ErrConcurrencyConflict(err)
	case isTimeout(err):
		return apperror.ErrTransactionTimeout(err)
	case isUniqueViolation(err):
		// Backstop for the one-entry-per-reference index; the row locks normally catch this first.
		return apperror.ErrInvalidState("reference has already been applied to the ledger")
	}
	return err
}

func (t *Transactor) runOnce(ctx context.Context, opts ports.TxOptions, fn ports.TxFunc) error {
	txCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.pool.BeginTx(txCtx, pgxTxOptions(opts))
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		return err
	}
	if err := tx.Commit(txCtx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func (t *Transactor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

func pgxTxOptions(opts ports.TxOptions) pgx.TxOptions {
	if opts.ReadOnly {
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	}
	return pgx.TxOptions{}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateQueryCanceled
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}
