package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Transactor implements ports.DBTransactor for the memory store.
// Locks are pessimistic and taken in a fixed order, so there is nothing to retry.
type Transactor struct {
	store   *Store
	timeout time.Duration
	log     zerolog.Logger
}

// NewTransactor creates a Transactor with the given per-transaction timeout.
func NewTransactor(store *Store, timeout time.Duration, log zerolog.Logger) *Transactor {
	return &Transactor{store: store, timeout: timeout, log: log}
}

// WithinTx runs fn in a transaction and commits it.
func (t *Transactor) WithinTx(ctx context.Context, opts ports.TxOptions, fn ports.TxFunc) error {
	txCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx := newMemTx(t.store, opts.ReadOnly)
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	err := fn(txCtx, tx)
	if err == nil {
		err = txCtx.Err()
	}
	if err == nil {
		if err = tx.Commit(txCtx); err != nil {
			err = fmt.Errorf("commit tx: %w", err)
		}
	}
	if err == nil {
		committed = true
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		t.log.Warn().Err(err).Msg("transaction timed out")
		return apperror.ErrTransactionTimeout(err)
	case isUniqueViolation(err):
		return apperror.ErrInvalidState("reference has already been applied to the ledger")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
