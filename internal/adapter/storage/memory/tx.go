package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errSQLUnsupported = errors.New("memory: raw SQL is not supported")

// memTx implements pgx.Tx over the Store. Writes are staged on the
// transaction and applied atomically on Commit.
type memTx struct {
	store    *Store
	snapshot *state // non-nil for read-only transactions
	done     bool

	held      map[string]struct{}
	heldOrder []string

	wallets   map[int64]domain.Wallet
	entries   []domain.LedgerEntry
	recharges map[int64]domain.RechargeRequest
	orders    map[int64]domain.Order
	audits    []domain.AuditLog
}

func newMemTx(store *Store, readOnly bool) *memTx {
	t := &memTx{
		store:     store,
		held:      make(map[string]struct{}),
		wallets:   make(map[int64]domain.Wallet),
		recharges: make(map[int64]domain.RechargeRequest),
		orders:    make(map[int64]domain.Order),
	}
	if readOnly {
		store.mu.RLock()
		t.snapshot = store.st.clone()
		store.mu.RUnlock()
	}
	return t
}

// asTx unwraps a transaction handed to a memory repository.
func asTx(tx pgx.Tx) (*memTx, error) {
	if tx == nil {
		return nil, nil
	}
	mt, ok := tx.(*memTx)
	if !ok {
		return nil, fmt.Errorf("memory: foreign transaction type %T", tx)
	}
	if mt.done {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

// mustTx is asTx for operations that require a transaction.
func mustTx(tx pgx.Tx) (*memTx, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if mt == nil {
		return nil, errors.New("memory: operation requires a transaction")
	}
	if mt.snapshot != nil {
		return nil, &pgconn.PgError{Code: "25006", Message: "cannot execute in a read-only transaction"}
	}
	return mt, nil
}

// lock takes the row lock for key and holds it until the transaction ends.
func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, key); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	t.held[key] = struct{}{}
	t.heldOrder = append(t.heldOrder, key)
	return nil
}

func customerLockKey(customerID int64) string {
	return "wallet:customer:" + strconv.FormatInt(customerID, 10)
}

func (t *memTx) release() {
	for i := len(t.heldOrder) - 1; i >= 0; i-- {
		t.store.locks.release(t.heldOrder[i])
	}
	t.held = nil
	t.heldOrder = nil
	t.done = true
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	defer t.release()
	if t.snapshot != nil {
		return nil
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range t.wallets {
		s.st.wallets[id] = w
		s.st.walletByCustomer[w.CustomerID] = id
	}
	s.st.entries = append(s.st.entries, t.entries...)
	for id, r := range t.recharges {
		s.st.recharges[id] = r
	}
	for id, o := range t.orders {
		s.st.orders[id] = o
	}
	s.st.audits = append(s.st.audits, t.audits...)
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errSQLUnsupported
}

func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return errBatch{errSQLUnsupported}
}

func (t *memTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errSQLUnsupported
}

func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errSQLUnsupported
}

func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errSQLUnsupported
}

func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{errSQLUnsupported}
}

func (t *memTx) Conn() *pgx.Conn { return nil }

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// errBatch fails every batched statement with err.
type errBatch struct{ err error }

func (b errBatch) Exec() (pgconn.CommandTag, error) { return pgconn.NewCommandTag(""), b.err }
func (b errBatch) Query() (pgx.Rows, error)         { return nil, b.err }
func (b errBatch) QueryRow() pgx.Row                { return errRow{b.err} }
func (b errBatch) Close() error                     { return b.err }
