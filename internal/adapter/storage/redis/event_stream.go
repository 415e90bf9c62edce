package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"customer-wallet-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// defaultStreamMaxLen caps the stream so unconsumed events cannot grow it without bound.
const defaultStreamMaxLen = 100000

// EventStream implements ports.Notifier by appending events to a Redis stream
// for downstream consumers (customer notifications, analytics).
type EventStream struct {
	client goredis.UniversalClient
	stream string
	maxLen int64
}

// NewEventStream creates a publisher for the named stream.
func NewEventStream(client goredis.UniversalClient, stream string) *EventStream {
	return &EventStream{
		client: client,
		stream: keyPrefix + stream,
		maxLen: defaultStreamMaxLen,
	}
}

// Publish appends the event with XADD. The payload field carries the full JSON.
func (s *EventStream) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":    event.ID.String(),
			"type":        string(event.Type),
			"customer_id": event.CustomerID,
			"payload":     payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}

// Name identifies this sink in logs.
func (s *EventStream) Name() string {
	return "redis-stream"
}
