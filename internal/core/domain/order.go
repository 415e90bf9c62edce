package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialReviewStatus is the finance gate an order passes before fulfillment.
type FinancialReviewStatus string

const (
	FinancialReviewPending  FinancialReviewStatus = "pending_review"
	FinancialReviewApproved FinancialReviewStatus = "approved"
	FinancialReviewRejected FinancialReviewStatus = "rejected"
)

// Order carries the financial fields of an order owned by the order subsystem.
// WalletUsed was reserved from the wallet when the order was created.
type Order struct {
	ID                    int64                 `json:"id"`
	OrderNumber           string                `json:"order_number"`
	CustomerID            int64                 `json:"customer_id"`
	TotalAmount           decimal.Decimal       `json:"total_amount"`
	WalletUsed            decimal.Decimal       `json:"wallet_used"`
	RemainingAmount       decimal.Decimal       `json:"remaining_amount"`
	FinancialReviewStatus FinancialReviewStatus `json:"financial_review_status"`
	FinancialReviewedAt   *time.Time            `json:"financial_reviewed_at,omitempty"`
	FinancialReviewerID   *int64                `json:"financial_reviewer_id,omitempty"`
	FinancialNotes        string                `json:"financial_notes,omitempty"`
}

// IsPendingReview reports whether the order is waiting on financial review.
func (o *Order) IsPendingReview() bool {
	return o.FinancialReviewStatus == FinancialReviewPending
}

// UsesWallet reports whether part of the order is paid from the wallet.
func (o *Order) UsesWallet() bool {
	return o.WalletUsed.IsPositive()
}
