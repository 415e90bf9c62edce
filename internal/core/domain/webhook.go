package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDelivery tracks delivery of one event to the notification endpoint.
type WebhookDelivery struct {
	ID         uuid.UUID     `json:"id"`
	EventID    uuid.UUID     `json:"event_id"`
	EventType  EventType     `json:"event_type"`
	CustomerID int64         `json:"customer_id"`
	WebhookURL string        `json:"webhook_url"`
	Payload    string        `json:"payload"` // JSON string
	HTTPStatus *int          `json:"http_status"`
	Attempt    int           `json:"attempt"`
	Status     WebhookStatus `json:"status"`
	LastError  *string       `json:"last_error"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
