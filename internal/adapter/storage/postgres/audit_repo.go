package postgres

import (
	"context"
	"fmt"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

type auditRepo struct {
	pool Pool
}

// NewAuditRepository creates a PostgreSQL-backed AuditRepository.
func NewAuditRepository(pool Pool) ports.AuditRepository {
	return &auditRepo{pool: pool}
}

// Create writes the record inside tx when given, so it commits or rolls back
// with the financial change it describes.
func (r *auditRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.AuditLog) error {
	var role, details *string
	if log.ActorRole != "" {
		s := string(log.ActorRole)
		role = &s
	}
	if log.Details != "" {
		details = &log.Details
	}

	_, err := conn(r.pool, tx).Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, actor_role, action, resource_type, resource_id, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.ID, log.ActorID, role, string(log.Action), log.ResourceType,
		log.ResourceID, details, log.IPAddress, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
