package service

import (
	"context"
	"encoding/json"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// publishAfterCommit hands event to the notifier. It must only be called once
// the producing transaction has committed; failures are logged and dropped.
func publishAfterCommit(ctx context.Context, n ports.Notifier, log zerolog.Logger, event domain.Event) {
	if n == nil {
		return
	}
	if err := n.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warn().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Int64("customer_id", event.CustomerID).
			Msg("failed to publish event")
	}
}

// newAuditLog builds an admin audit row. details is marshalled to JSON.
func newAuditLog(adminID int64, action domain.AuditAction, resourceType, resourceID, ip string, details map[string]string) *domain.AuditLog {
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &adminID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ip,
	}
	if len(details) > 0 {
		b, _ := json.Marshal(details)
		entry.Details = string(b)
	}
	return entry
}
