package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a balance-affecting event.
type EntryKind string

const (
	EntryKindRechargeApproved EntryKind = "recharge_approved"
	EntryKindOrderPayment     EntryKind = "order_payment"
	EntryKindOrderRefund      EntryKind = "order_refund"
	EntryKindAdminCredit      EntryKind = "admin_credit"
	EntryKindAdminDebit       EntryKind = "admin_debit"
	EntryKindAdminSetBalance  EntryKind = "admin_set_balance"
)

// Valid reports whether k is a known kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindRechargeApproved, EntryKindOrderPayment, EntryKindOrderRefund,
		EntryKindAdminCredit, EntryKindAdminDebit, EntryKindAdminSetBalance:
		return true
	}
	return false
}

// IsDebit reports whether entries of this kind must carry a negative amount.
func (k EntryKind) IsDebit() bool {
	return k == EntryKindOrderPayment || k == EntryKindAdminDebit
}

// IsCredit reports whether entries of this kind must carry a positive amount.
func (k EntryKind) IsCredit() bool {
	return k == EntryKindRechargeApproved || k == EntryKindOrderRefund || k == EntryKindAdminCredit
}

// RequiresReason is true for operator-initiated kinds.
func (k EntryKind) RequiresReason() bool {
	return k == EntryKindAdminCredit || k == EntryKindAdminDebit || k == EntryKindAdminSetBalance
}

// ReferenceType names the entity a ledger entry points at.
type ReferenceType string

const (
	ReferenceNone            ReferenceType = ""
	ReferenceRechargeRequest ReferenceType = "recharge_request"
	ReferenceOrder           ReferenceType = "order"
)

// Reference identifies the request or order that caused an entry.
type Reference struct {
	Type ReferenceType `json:"type"`
	ID   int64         `json:"id"`
}

// LedgerEntry is an immutable, append-only record of one balance change.
type LedgerEntry struct {
	ID            int64             `json:"id"`
	WalletID      int64             `json:"wallet_id"`
	Amount        decimal.Decimal   `json:"amount"` // positive = credit, negative = debit
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Kind          EntryKind         `json:"kind"`
	ReferenceType ReferenceType     `json:"reference_type,omitempty"`
	ReferenceID   *int64            `json:"reference_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CreatedBy     *int64            `json:"created_by,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Reference returns the entry's reference, or nil for pure adjustments.
func (e *LedgerEntry) Reference() *Reference {
	if e.ReferenceType == ReferenceNone || e.ReferenceID == nil {
		return nil
	}
	return &Reference{Type: e.ReferenceType, ID: *e.ReferenceID}
}

// BalanceBefore is the wallet balance immediately before this entry.
func (e *LedgerEntry) BalanceBefore() decimal.Decimal {
	return e.BalanceAfter.Sub(e.Amount)
}

// Metadata keys recorded on set-balance entries.
const (
	MetaTargetBalance   = "target_balance"
	MetaPreviousBalance = "previous_balance"
)
