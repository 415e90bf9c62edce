package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a customer's stored-value balance. One per customer.
// Balance is a cache of the ledger sum and is only written by the ledger store.
type Wallet struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	IsActive     bool            `json:"is_active"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CanCover reports whether applying amount (negative for debits) keeps the balance non-negative.
func (w *Wallet) CanCover(amount decimal.Decimal) bool {
	return !w.Balance.Add(amount).IsNegative()
}

// Drift is the outcome of recomputing a wallet balance from its ledger.
type Drift struct {
	WalletID       int64           `json:"wallet_id"`
	CustomerID     int64           `json:"customer_id"`
	PreviousCached decimal.Decimal `json:"previous_cached"`
	Recomputed     decimal.Decimal `json:"recomputed"`
	Drift          decimal.Decimal `json:"drift"`
	SyncedAt       time.Time       `json:"synced_at"`
}

// Detected reports whether the cached balance disagreed with the ledger.
func (d *Drift) Detected() bool {
	return !d.Drift.IsZero()
}
