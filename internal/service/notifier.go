package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWebhookRetryIntervals is the wait before each redelivery attempt.
var DefaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NamedNotifier is a notifier sink with a name for logs.
type NamedNotifier interface {
	ports.Notifier
	Name() string
}

// FanoutNotifier publishes each event to every sink. A failing sink is logged
// and does not stop the others.
type FanoutNotifier struct {
	sinks []NamedNotifier
	log   zerolog.Logger
}

// NewFanoutNotifier creates a notifier over sinks.
func NewFanoutNotifier(log zerolog.Logger, sinks ...NamedNotifier) *FanoutNotifier {
	return &FanoutNotifier{sinks: sinks, log: log}
}

// Publish delivers event to all sinks and joins their errors.
func (n *FanoutNotifier) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, sink := range n.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			n.log.Warn().Err(err).
				Str("sink", sink.Name()).
				Str("event_id", event.ID.String()).
				Str("event_type", string(event.Type)).
				Msg("notifier: publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Publish(_ context.Context, event domain.Event) error {
	evt := n.log.Info()
	if event.Type == domain.EventWalletDriftDetected {
		evt = n.log.Error()
	}
	evt.Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Int64("customer_id", event.CustomerID).
		Str("amount", event.Amount.String()).
		Str("balance", event.Balance.String()).
		Msg("wallet event")
	return nil
}

// WebhookNotifier POSTs signed events to a notification endpoint.
// Delivery runs in the background with retries; Publish only fails when the
// event cannot be prepared.
type WebhookNotifier struct {
	url        string
	secret     string
	sigSvc     ports.SignatureService
	repo       ports.WebhookRepository
	httpClient HTTPClient
	intervals  []time.Duration
	log        zerolog.Logger
}

// NewWebhookNotifier creates a webhook sink. repo may be nil, in which case
// delivery attempts are only logged. nil intervals use DefaultWebhookRetryIntervals.
func NewWebhookNotifier(
	url string,
	secret string,
	sigSvc ports.SignatureService,
	repo ports.WebhookRepository,
	httpClient HTTPClient,
	intervals []time.Duration,
	log zerolog.Logger,
) *WebhookNotifier {
	if intervals == nil {
		intervals = DefaultWebhookRetryIntervals
	}
	return &WebhookNotifier{
		url:        url,
		secret:     secret,
		sigSvc:     sigSvc,
		repo:       repo,
		httpClient: httpClient,
		intervals:  intervals,
		log:        log,
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Publish signs the event and schedules delivery.
func (n *WebhookNotifier) Publish(ctx context.Context, event domain.Event) error {
	if n.url == "" {
		n.log.Debug().Str("event_id", event.ID.String()).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	signature := n.sigSvc.Sign(n.secret, string(body))

	var delivery *domain.WebhookDelivery
	if n.repo != nil {
		now := time.Now()
		delivery = &domain.WebhookDelivery{
			ID:         uuid.New(),
			EventID:    event.ID,
			EventType:  event.Type,
			CustomerID: event.CustomerID,
			WebhookURL: n.url,
			Payload:    string(body),
			Status:     domain.WebhookStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := n.repo.Create(ctx, delivery); err != nil {
			n.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("webhook: failed to record delivery")
			delivery = nil
		}
	}

	go n.deliverWithRetries(event, body, signature, delivery)
	return nil
}

// scheduleBackOff walks a fixed list of waits, then stops.
type scheduleBackOff struct {
	intervals []time.Duration
	next      int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.intervals) {
		return backoff.Stop
	}
	d := b.intervals[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() { b.next = 0 }

func (n *WebhookNotifier) deliverWithRetries(event domain.Event, body []byte, signature string, delivery *domain.WebhookDelivery) {
	eventID := event.ID.String()

	attempt := 0
	op := func() error {
		attempt++
		status, err := n.deliver(event, body, signature)
		n.record(delivery, attempt, status, err)
		if err == nil {
			n.log.Info().Str("event_id", eventID).Int("attempt", attempt).Int("status", status).Msg("webhook: delivered successfully")
		}
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		n.log.Warn().Err(err).Str("event_id", eventID).Int("attempt", attempt).Dur("retry_in", wait).Msg("webhook: delivery failed")
	}

	err := backoff.RetryNotify(op, &scheduleBackOff{intervals: n.intervals}, onRetry)
	if err == nil {
		return
	}

	if delivery != nil {
		delivery.Status = domain.WebhookStatusFailed
		n.update(delivery)
	}
	n.log.Error().Err(err).Str("event_id", eventID).Int("attempts", attempt).Msg("webhook: all retry attempts exhausted")
}

func (n *WebhookNotifier) deliver(event domain.Event, body []byte, signature string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Event-ID", event.ID.String())
	req.Header.Set("X-Event-Type", string(event.Type))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	if resp.Body != nil {
		resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (n *WebhookNotifier) record(delivery *domain.WebhookDelivery, attempt int, status int, err error) {
	if delivery == nil {
		return
	}
	delivery.Attempt = attempt
	if status != 0 {
		s := status
		delivery.HTTPStatus = &s
	}
	if err != nil {
		msg := err.Error()
		delivery.LastError = &msg
	} else {
		delivery.Status = domain.WebhookStatusDelivered
		delivery.LastError = nil
	}
	n.update(delivery)
}

func (n *WebhookNotifier) update(delivery *domain.WebhookDelivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.repo.Update(ctx, delivery); err != nil {
		n.log.Warn().Err(err).Str("event_id", delivery.EventID.String()).Msg("webhook: failed to update delivery record")
	}
}
