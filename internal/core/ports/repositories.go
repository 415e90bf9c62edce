package ports

import (
	"context"
	"time"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods named *ForUpdate take the wallet row lock and MUST run inside a transaction.
// Plain reads accept an optional tx: when tx is nil they run on the pool.
type WalletRepository interface {
	GetByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error)
	GetByCustomerID(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error)
	// GetOrCreateForUpdate lazily creates the customer's wallet and locks it.
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, customerID int64, currency string) (*domain.Wallet, error)
	GetByCustomerIDForUpdate(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID int64, balance decimal.Decimal) error
	MarkSynced(ctx context.Context, tx pgx.Tx, walletID int64, balance decimal.Decimal, syncedAt time.Time) error
	SetActive(ctx context.Context, tx pgx.Tx, walletID int64, active bool) error
	ListIDs(ctx context.Context) ([]int64, error)
	GetStats(ctx context.Context) (*WalletStats, error)
}

// WalletStats holds system-wide wallet figures for the admin dashboard.
type WalletStats struct {
	TotalWallets     int64           `json:"total_wallets"`
	ActiveWallets    int64           `json:"active_wallets"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
	PendingRecharges int64           `json:"pending_recharges"`
	TotalEntries     int64           `json:"total_entries"`
}

// LedgerRepository defines persistence for the append-only ledger.
// There is no update or delete: corrections are new entries.
type LedgerRepository interface {
	// Create inserts the entry and fills in ID and CreatedAt.
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	SumByWallet(ctx context.Context, tx pgx.Tx, walletID int64) (decimal.Decimal, error)
	ListByWallet(ctx context.Context, tx pgx.Tx, params LedgerListParams) ([]domain.LedgerEntry, error)
	GetTotals(ctx context.Context, tx pgx.Tx, walletID int64) (*LedgerTotals, error)
}

// LedgerListParams is a keyset page over a wallet's entries, newest first.
type LedgerListParams struct {
	WalletID int64
	BeforeID int64 // 0 starts from the newest entry
	Limit    int
}

// LedgerTotals aggregates a wallet's history by purpose.
type LedgerTotals struct {
	Recharged decimal.Decimal // sum of approved recharges
	Spent     decimal.Decimal // absolute sum of order payments
	Entries   int64
}

// RechargeRepository defines persistence for recharge requests.
type RechargeRepository interface {
	// Create inserts the request and fills in ID.
	Create(ctx context.Context, req *domain.RechargeRequest) error
	GetByID(ctx context.Context, id int64) (*domain.RechargeRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.RechargeRequest, error)
	// UpdateReview persists the outcome of an admin review. Only pending rows are updated.
	UpdateReview(ctx context.Context, tx pgx.Tx, req *domain.RechargeRequest) error
	ListByCustomer(ctx context.Context, tx pgx.Tx, customerID int64, status *domain.RechargeStatus) ([]domain.RechargeRequest, error)
	List(ctx context.Context, params RechargeListParams) ([]domain.RechargeRequest, int64, error)
}

// RechargeListParams holds filter + pagination for the admin queue.
type RechargeListParams struct {
	Status     *domain.RechargeStatus
	CustomerID *int64
	Page       int
	PageSize   int
}

// OrderRepository reads and updates the financial fields of orders.
// Orders themselves are created by the order subsystem.
type OrderRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error)
	// UpdateReview persists the financial review outcome. Only pending_review rows are updated.
	UpdateReview(ctx context.Context, tx pgx.Tx, order *domain.Order) error
}

// AuditRepository persists audit records. A nil tx writes outside any transaction.
type AuditRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.AuditLog) error
}

// WebhookRepository records notification webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	Update(ctx context.Context, d *domain.WebhookDelivery) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error)
}

// TxOptions tunes a unit of work.
type TxOptions struct {
	// ReadOnly runs a REPEATABLE READ READ ONLY snapshot.
	ReadOnly bool
}

// TxFunc is the body of a unit of work. It may be invoked more than once
// when the transaction is retried, so it must not leak state between attempts.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// DBTransactor runs units of work atomically.
type DBTransactor interface {
	WithinTx(ctx context.Context, opts TxOptions, fn TxFunc) error
}
