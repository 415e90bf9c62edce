package domain

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

// RechargeStatus is the state of a top-up request.
type RechargeStatus string

const (
	RechargeStatusPending  RechargeStatus = "pending"
	RechargeStatusApproved RechargeStatus = "approved"
	RechargeStatusRejected RechargeStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s RechargeStatus) Valid() bool {
	return s == RechargeStatusPending || s == RechargeStatusApproved || s == RechargeStatusRejected
}

// PaymentMethod is how the customer paid for a recharge outside the wallet.
type PaymentMethod string

const (
	PaymentMethodBankTransfer  PaymentMethod = "bank_transfer"
	PaymentMethodReceiptUpload PaymentMethod = "receipt_upload"
	PaymentMethodCash          PaymentMethod = "cash"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodBankTransfer || m == PaymentMethodReceiptUpload || m == PaymentMethodCash
}

// RechargeRequest is a customer-submitted request to add funds, pending admin review.
type RechargeRequest struct {
	ID               int64           `json:"id"`
	RequestNumber    string          `json:"request_number"`
	CustomerID       int64           `json:"customer_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	Status           RechargeStatus  `json:"status"`
	CustomerNotes    string          `json:"customer_notes,omitempty"`
	AdminNotes       string          `json:"admin_notes,omitempty"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	ProcessedBy      *int64          `json:"processed_by,omitempty"`
	LedgerEntryID    *int64          `json:"ledger_entry_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

// IsPending reports whether the request still awaits review.
func (r *RechargeRequest) IsPending() bool {
	return r.Status == RechargeStatusPending
}

// IsTerminal returns true once the request was approved or rejected.
func (r *RechargeRequest) IsTerminal() bool {
	return r.Status == RechargeStatusApproved || r.Status == RechargeStatusRejected
}

// NewRequestNumber builds the human-facing request number: "WR", the
// millisecond timestamp, and a three digit random suffix.
func NewRequestNumber(now time.Time) string {
	return fmt.Sprintf("WR%d%03d", now.UnixMilli(), rand.IntN(1000))
}
