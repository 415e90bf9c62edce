package postgres

import (
	"context"
	"fmt"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

type webhookRepo struct {
	pool Pool
}

// NewWebhookRepository creates a PostgreSQL-backed WebhookRepository.
func NewWebhookRepository(pool Pool) ports.WebhookRepository {
	return &webhookRepo{pool: pool}
}

func (r *webhookRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries
		(id, event_id, event_type, customer_id, webhook_url, payload, http_status, attempt, status, last_error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		d.ID, d.EventID, string(d.EventType), d.CustomerID, d.WebhookURL,
		d.Payload, d.HTTPStatus, d.Attempt, string(d.Status),
		d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookRepo) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	d.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_deliveries
		 SET http_status=$1, attempt=$2, status=$3, last_error=$4, updated_at=$5
		 WHERE id=$6`,
		d.HTTPStatus, d.Attempt, string(d.Status),
		d.LastError, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_id, event_type, customer_id, webhook_url, payload,
		http_status, attempt, status, last_error, created_at, updated_at
		 FROM webhook_deliveries
		 WHERE event_id=$1
		 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		var eventType, status string
		if err := rows.Scan(
			&d.ID, &d.EventID, &eventType, &d.CustomerID, &d.WebhookURL, &d.Payload,
			&d.HTTPStatus, &d.Attempt, &status, &d.LastError,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		d.EventType = domain.EventType(eventType)
		d.Status = domain.WebhookStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}
