package memory

import (
	"context"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

type auditRepo struct {
	store *Store
}

// NewAuditRepository creates a memory-backed AuditRepository.
func NewAuditRepository(store *Store) ports.AuditRepository {
	return &auditRepo{store: store}
}

func (r *auditRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.AuditLog) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	if mt != nil && mt.snapshot == nil {
		mt.audits = append(mt.audits, *log)
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.st.audits = append(r.store.st.audits, *log)
	return nil
}
