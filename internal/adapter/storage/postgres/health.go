package postgres

import (
	"context"
	"errors"
)

// HealthCheck reports whether PostgreSQL is reachable and migrated.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping fails when the database is down or the ledger tables are missing.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var migrated bool
	err := h.pool.QueryRow(ctx, "SELECT to_regclass('public.ledger_entries') IS NOT NULL").Scan(&migrated)
	if err != nil {
		return err
	}
	if !migrated {
		return errors.New("ledger schema is not migrated")
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
