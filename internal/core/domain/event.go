package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a post-commit notification.
type EventType string

const (
	EventRechargeApproved    EventType = "RechargeApproved"
	EventRechargeRejected    EventType = "RechargeRejected"
	EventOrderSettled        EventType = "OrderSettled"
	EventOrderRejected       EventType = "OrderRejected"
	EventBalanceAdjusted     EventType = "BalanceAdjusted"
	EventWalletDriftDetected EventType = "WalletDriftDetected"
)

// Event is published after the transaction that produced it has committed.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Type          EventType         `json:"type"`
	CustomerID    int64             `json:"customer_id"`
	WalletID      int64             `json:"wallet_id,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Balance       decimal.Decimal   `json:"balance"`
	ReferenceType ReferenceType     `json:"reference_type,omitempty"`
	ReferenceID   int64             `json:"reference_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewEvent stamps a fresh event id and time.
func NewEvent(t EventType, customerID int64) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		CustomerID: customerID,
		OccurredAt: time.Now().UTC(),
	}
}
