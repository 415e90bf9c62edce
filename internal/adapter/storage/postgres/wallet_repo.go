package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumnList = `id, customer_id, cached_balance, currency, is_active, last_synced_at, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.CustomerID, &w.Balance, &w.Currency,
		&w.IsActive, &w.LastSyncedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *WalletRepo) getOne(ctx context.Context, db DBTX, what, query string, arg any) (*domain.Wallet, error) {
	w, err := scanWallet(db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return w, nil
}

// GetByID fetches a wallet by id (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE id = $1`
	return r.getOne(ctx, conn(r.pool, tx), "get wallet by id", query, id)
}

// GetByCustomerID fetches a customer's wallet (without locking).
func (r *WalletRepo) GetByCustomerID(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE customer_id = $1`
	return r.getOne(ctx, conn(r.pool, tx), "get wallet by customer id", query, customerID)
}

// GetOrCreateForUpdate creates the wallet on first use and locks its row.
// This MUST be called within a transaction.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, customerID int64, currency string) (*domain.Wallet, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO wallets (customer_id, currency) VALUES ($1, $2) ON CONFLICT (customer_id) DO NOTHING`,
		customerID, currency,
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	w, err := r.GetByCustomerIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet for customer %d vanished after insert", customerID)
	}
	return w, nil
}

// GetByCustomerIDForUpdate fetches a customer's wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByCustomerIDForUpdate(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE customer_id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, "get wallet for update by customer", query, customerID)
}

// GetByIDForUpdate fetches a wallet by id with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, tx, "get wallet for update by id", query, id)
}

// UpdateBalance writes the cached balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID int64, balance decimal.Decimal) error {
	query := `UPDATE wallets SET cached_balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %d", walletID)
	}
	return nil
}

// MarkSynced writes the recomputed balance and stamps last_synced_at.
func (r *WalletRepo) MarkSynced(ctx context.Context, tx pgx.Tx, walletID int64, balance decimal.Decimal, syncedAt time.Time) error {
	query := `UPDATE wallets SET cached_balance = $1, last_synced_at = $2, updated_at = NOW() WHERE id = $3`

	tag, err := tx.Exec(ctx, query, balance, syncedAt, walletID)
	if err != nil {
		return fmt.Errorf("mark wallet synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %d", walletID)
	}
	return nil
}

// SetActive soft-deactivates or reactivates a wallet.
func (r *WalletRepo) SetActive(ctx context.Context, tx pgx.Tx, walletID int64, active bool) error {
	query := `UPDATE wallets SET is_active = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, active, walletID)
	if err != nil {
		return fmt.Errorf("set wallet active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %d", walletID)
	}
	return nil
}

// ListIDs returns every wallet id in ascending order.
func (r *WalletRepo) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM wallets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetStats aggregates system-wide wallet figures.
func (r *WalletRepo) GetStats(ctx context.Context) (*ports.WalletStats, error) {
	query := `SELECT
			(SELECT COUNT(*) FROM wallets),
			(SELECT COUNT(*) FROM wallets WHERE is_active),
			(SELECT COALESCE(SUM(cached_balance), 0) FROM wallets),
			(SELECT COUNT(*) FROM recharge_requests WHERE status = 'pending'),
			(SELECT COUNT(*) FROM ledger_entries)`

	s := &ports.WalletStats{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.TotalWallets, &s.ActiveWallets, &s.TotalBalance,
		&s.PendingRecharges, &s.TotalEntries,
	)
	if err != nil {
		return nil, fmt.Errorf("get wallet stats: %w", err)
	}
	return s, nil
}
