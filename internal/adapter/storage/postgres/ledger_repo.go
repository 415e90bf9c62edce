package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const ledgerColumnList = `id, wallet_id, amount, balance_after, kind, reference_type, reference_id,
		reason, created_by, metadata, created_at`

// LedgerRepo implements ports.LedgerRepository. Entries are insert-only.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create appends an entry within a database transaction and fills in ID and CreatedAt.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	var refType *string
	if e.ReferenceType != domain.ReferenceNone {
		s := string(e.ReferenceType)
		refType = &s
	}

	query := `INSERT INTO ledger_entries (wallet_id, amount, balance_after, kind, reference_type, reference_id,
		reason, created_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err = tx.QueryRow(ctx, query,
		e.WalletID, e.Amount, e.BalanceAfter, e.Kind, refType, e.ReferenceID,
		e.Reason, e.CreatedBy, meta,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// SumByWallet recomputes a wallet's balance from its full history.
func (r *LedgerRepo) SumByWallet(ctx context.Context, tx pgx.Tx, walletID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE wallet_id = $1`

	var sum decimal.Decimal
	if err := conn(r.pool, tx).QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

// ListByWallet returns a keyset page of entries, newest first.
func (r *LedgerRepo) ListByWallet(ctx context.Context, tx pgx.Tx, params ports.LedgerListParams) ([]domain.LedgerEntry, error) {
	args := []any{params.WalletID}
	where := "wallet_id = $1"
	if params.BeforeID > 0 {
		where += " AND id < $2"
		args = append(args, params.BeforeID)
	}
	query := fmt.Sprintf(`SELECT %s FROM ledger_entries WHERE %s ORDER BY id DESC LIMIT $%d`,
		ledgerColumnList, where, len(args)+1)
	args = append(args, params.Limit)

	rows, err := conn(r.pool, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, params.Limit)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

// GetTotals aggregates a wallet's recharges and order spend.
func (r *LedgerRepo) GetTotals(ctx context.Context, tx pgx.Tx, walletID int64) (*ports.LedgerTotals, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE kind = 'recharge_approved'), 0) AS recharged,
		COALESCE(-SUM(amount) FILTER (WHERE kind = 'order_payment'), 0) AS spent,
		COUNT(*) AS entries
		FROM ledger_entries WHERE wallet_id = $1`

	t := &ports.LedgerTotals{}
	err := conn(r.pool, tx).QueryRow(ctx, query, walletID).Scan(&t.Recharged, &t.Spent, &t.Entries)
	if err != nil {
		return nil, fmt.Errorf("get ledger totals: %w", err)
	}
	return t, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	var refType *string
	var meta []byte
	err := row.Scan(
		&e.ID, &e.WalletID, &e.Amount, &e.BalanceAfter, &e.Kind, &refType, &e.ReferenceID,
		&e.Reason, &e.CreatedBy, &meta, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	if refType != nil {
		e.ReferenceType = domain.ReferenceType(*refType)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode ledger metadata: %w", err)
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
	}
	return e, nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode ledger metadata: %w", err)
	}
	return b, nil
}
