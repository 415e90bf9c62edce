package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

type webhookRepo struct {
	store *Store
}

// NewWebhookRepository creates a memory-backed WebhookRepository.
func NewWebhookRepository(store *Store) ports.WebhookRepository {
	return &webhookRepo{store: store}
}

func (r *webhookRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.st.webhooks[d.ID]; ok {
		return fmt.Errorf("insert webhook delivery: %w", uniqueViolation("webhook_deliveries_pkey"))
	}
	r.store.st.webhooks[d.ID] = *d
	return nil
}

func (r *webhookRepo) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	d.UpdatedAt = time.Now()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.st.webhooks[d.ID]; !ok {
		return fmt.Errorf("webhook delivery not found: %s", d.ID)
	}
	r.store.st.webhooks[d.ID] = *d
	return nil
}

func (r *webhookRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error) {
	var out []domain.WebhookDelivery
	r.store.view(nil, func(st *state) {
		for _, d := range st.webhooks {
			if d.EventID == eventID {
				out = append(out, d)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
