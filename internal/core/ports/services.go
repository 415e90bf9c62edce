package ports

import (
	"context"
	"time"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks
//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles identity-provider JWTs.
type TokenService interface {
	Generate(actor domain.Actor, ttl time.Duration) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the verified identity carried by a token.
type TokenClaims struct {
	Actor    domain.Actor
	IssuedAt time.Time
}

// IdempotencyCache is the Redis-layer idempotency store for customer submissions.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	// Reserve atomically claims key. Returns false if it is already claimed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Notifier receives post-commit events. Delivery failures never affect ledger state.
type Notifier interface {
	Publish(ctx context.Context, event domain.Event) error
}

// HealthChecker is a dependency checked by GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string // e.g. "postgresql", "redis", "memory"
}

// AuditService records access audit entries asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// LedgerService is the ledger store: the only writer of wallet balances.
type LedgerService interface {
	// AppendTx appends inside the caller's transaction. The wallet row is locked for the rest of tx.
	AppendTx(ctx context.Context, tx pgx.Tx, req AppendRequest) (*AppendResult, error)
	// Append runs AppendTx in its own transaction.
	Append(ctx context.Context, req AppendRequest) (*AppendResult, error)
	GetBalance(ctx context.Context, customerID int64) (*BalanceView, error)
	GetHistory(ctx context.Context, customerID int64, page HistoryPage) (*HistoryResult, error)
}

// AppendRequest describes one balance change.
type AppendRequest struct {
	CustomerID int64
	Amount     decimal.Decimal // signed; ignored for admin_set_balance
	Kind       domain.EntryKind
	Reference  *domain.Reference
	Reason     string
	Actor      *int64
	// TargetBalance is the requested balance for admin_set_balance.
	TargetBalance decimal.Decimal
}

// AppendResult is the entry written and the wallet after the change.
type AppendResult struct {
	Entry  *domain.LedgerEntry
	Wallet *domain.Wallet
}

// BalanceView is a customer's balance. WalletID is 0 until the first balance-affecting event.
type BalanceView struct {
	CustomerID int64           `json:"customer_id"`
	WalletID   int64           `json:"wallet_id"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	IsActive   bool            `json:"is_active"`
}

// HistoryPage selects a slice of history, newest first.
type HistoryPage struct {
	BeforeID int64
	Limit    int
}

// HistoryResult carries one page and the cursor for the next, nil when exhausted.
type HistoryResult struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	NextCursor *int64               `json:"next_cursor"`
}

// BalanceProjector detects and repairs drift between cached balance and ledger.
type BalanceProjector interface {
	Resync(ctx context.Context, walletID int64) (*domain.Drift, error)
	ResyncAll(ctx context.Context) (*ResyncReport, error)
}

// ResyncReport summarises a reconciliation sweep.
type ResyncReport struct {
	Checked int            `json:"checked"`
	Drifted []domain.Drift `json:"drifted"`
	Failed  int            `json:"failed"`
}

// RechargeService is the recharge request workflow.
type RechargeService interface {
	Submit(ctx context.Context, req SubmitRechargeRequest) (*domain.RechargeRequest, error)
	Approve(ctx context.Context, req ReviewRechargeRequest) (*RechargeOutcome, error)
	Reject(ctx context.Context, req ReviewRechargeRequest) (*domain.RechargeRequest, error)
	ListForCustomer(ctx context.Context, customerID int64) ([]domain.RechargeRequest, error)
	List(ctx context.Context, params RechargeListParams) ([]domain.RechargeRequest, int64, error)
}

// SubmitRechargeRequest holds validated input for a customer top-up.
type SubmitRechargeRequest struct {
	CustomerID       int64
	Amount           decimal.Decimal
	Currency         string
	PaymentMethod    domain.PaymentMethod
	PaymentReference *string
	CustomerNotes    string
	IdempotencyKey   string
}

// ReviewRechargeRequest is an admin decision. Notes are the admin notes on
// approval and the rejection reason on rejection.
type ReviewRechargeRequest struct {
	RequestID int64
	AdminID   int64
	Notes     string
	ClientIP  string
}

// RechargeOutcome is the result of an approval.
type RechargeOutcome struct {
	Request *domain.RechargeRequest `json:"request"`
	Entry   *domain.LedgerEntry     `json:"entry"`
	Balance decimal.Decimal         `json:"balance"`
}

// SettlementService is the order settlement coordinator.
type SettlementService interface {
	SettleApprovedOrder(ctx context.Context, req SettleOrderRequest) (*SettlementOutcome, error)
	RejectOrder(ctx context.Context, req RejectOrderRequest) (*domain.Order, error)
}

// SettleOrderRequest holds a financial reviewer's approval.
type SettleOrderRequest struct {
	OrderID                int64
	ReviewerID             int64
	Notes                  string
	ReportedExternalAmount *decimal.Decimal
	ClientIP               string
}

// RejectOrderRequest holds a financial reviewer's rejection.
type RejectOrderRequest struct {
	OrderID    int64
	ReviewerID int64
	Notes      string
	ClientIP   string
}

// SettlementOutcome is the settled order, the wallet debit (nil when nothing
// was drawn from the wallet) and the resulting balance.
type SettlementOutcome struct {
	Order   *domain.Order       `json:"order"`
	Entry   *domain.LedgerEntry `json:"entry,omitempty"`
	Balance decimal.Decimal     `json:"balance"`
}

// AdjustmentType is an operator's manual money movement.
type AdjustmentType string

const (
	AdjustmentCredit     AdjustmentType = "credit"
	AdjustmentDebit      AdjustmentType = "debit"
	AdjustmentSetBalance AdjustmentType = "set_balance"
)

// AdjustmentService is the admin adjustment gateway.
type AdjustmentService interface {
	Adjust(ctx context.Context, req AdjustRequest) (*AdjustmentOutcome, error)
	SetWalletActive(ctx context.Context, req WalletStatusRequest) (*domain.Wallet, error)
}

// AdjustRequest holds validated input for a manual adjustment.
// Amount is the target balance for set_balance.
type AdjustRequest struct {
	CustomerID int64
	AdminID    int64
	Type       AdjustmentType
	Amount     decimal.Decimal
	Reason     string
	ClientIP   string
}

// AdjustmentOutcome is the entry written and the new balance.
type AdjustmentOutcome struct {
	Entry   *domain.LedgerEntry `json:"entry"`
	Balance decimal.Decimal     `json:"balance"`
}

// WalletStatusRequest soft-deactivates or reactivates a wallet.
type WalletStatusRequest struct {
	CustomerID int64
	AdminID    int64
	Active     bool
	Reason     string
	ClientIP   string
}

// ReportingService defines summary/statistics queries.
type ReportingService interface {
	GetCustomerSummary(ctx context.Context, customerID int64) (*CustomerSummary, error)
	GetWalletStatistics(ctx context.Context) (*WalletStats, error)
}

// CustomerSummary is a consistent snapshot of one customer's wallet activity.
type CustomerSummary struct {
	Wallet           *domain.Wallet           `json:"wallet"`
	Balance          decimal.Decimal          `json:"balance"`
	RecentEntries    []domain.LedgerEntry     `json:"recent_entries"`
	PendingRecharges []domain.RechargeRequest `json:"pending_recharges"`
	TotalRecharged   decimal.Decimal          `json:"total_recharged"`
	TotalSpent       decimal.Decimal          `json:"total_spent"`
}
