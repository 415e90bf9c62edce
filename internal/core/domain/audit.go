package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRechargeApprove AuditAction = "RECHARGE_APPROVE"
	AuditActionRechargeReject  AuditAction = "RECHARGE_REJECT"
	AuditActionOrderSettle     AuditAction = "ORDER_SETTLE"
	AuditActionOrderReject     AuditAction = "ORDER_REJECT"
	AuditActionAdjustBalance   AuditAction = "ADJUST_BALANCE"
	AuditActionWalletStatus    AuditAction = "WALLET_STATUS"
	AuditActionWalletResync    AuditAction = "WALLET_RESYNC"
	AuditActionViewWallet      AuditAction = "VIEW_WALLET"
	AuditActionViewStats       AuditAction = "VIEW_STATS"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *int64      `json:"actor_id,omitempty"`
	ActorRole    Role        `json:"actor_role,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
