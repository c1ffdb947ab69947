// Package delivery sends workflow events to outbound webhooks: signed
// HTTP posts, bounded retries with exponential backoff, an activity
// log per attempt, and a periodic sweep re-queuing due retries.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

const (
	userAgent = "Gridbase-Webhooks/1.0"

	eventHeader     = "X-Gridbase-Event"
	deliveryHeader  = "X-Gridbase-Delivery"
	webhookHeader   = "X-Gridbase-Webhook"
	signatureHeader = "X-Gridbase-Signature"
	signaturePrefix = "sha256="

	// DefaultSweepInterval paces the retry sweep loop.
	DefaultSweepInterval = 30 * time.Second
)

// Service owns outbound webhook deliveries. It satisfies
// protocol.Deliverer for the action dispatchers.
type Service struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	queue       RetryQueue
	client      *http.Client
	logger      *slog.Logger

	sweepInterval time.Duration
	now           func() time.Time
}

// Option adjusts service construction.
type Option func(*Service)

// WithHTTPClient replaces the delivery HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithSweepInterval overrides the retry sweep cadence.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) { s.sweepInterval = interval }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	store persistence.Persistence,
	publisher eventbus.EventPublisher,
	queue RetryQueue,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		persistence:   store,
		publisher:     publisher,
		queue:         queue,
		client:        &http.Client{},
		logger:        logger.With("module", "delivery"),
		sweepInterval: DefaultSweepInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Trigger creates a pending delivery for the webhook if it is active
// and subscribed to eventKind; anything else is a silent no-op. The
// actual send happens on the delivery workers.
func (s *Service) Trigger(ctx context.Context, webhookID, eventKind string, payload map[string]any) error {
	webhook, err := s.persistence.WebhookByID(ctx, webhookID)
	if err != nil {
		if persistence.IsWebhookNotFound(err) {
			return errs.Misconfigured(fmt.Errorf("webhook %s not found", webhookID))
		}

		return err
	}

	if !webhook.Active || !webhook.AllowsEvent(eventKind) {
		s.logger.Debug("skipping delivery", "webhook_id", webhookID, "event_kind", eventKind)

		return nil
	}

	delivery := &models.WebhookDelivery{
		ID:        uuid.New().String(),
		WebhookID: webhook.ID,
		EventKind: eventKind,
		Payload:   payload,
		Status:    models.DeliveryStatusPending,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}

	if err := s.persistence.SaveDelivery(ctx, delivery); err != nil {
		return err
	}

	return s.publisher.Publish(ctx, events.DeliveryTopic, delivery.ID, events.DeliveryQueued{
		BaseEvent:  events.NewBaseEvent(events.DeliveryQueuedEvent),
		DeliveryID: delivery.ID,
		WebhookID:  webhook.ID,
	})
}

// Deliver performs one attempt on a delivery and persists the outcome.
// Terminal deliveries are left untouched.
func (s *Service) Deliver(ctx context.Context, delivery *models.WebhookDelivery) error {
	if delivery.Terminal() {
		return nil
	}

	webhook, err := s.persistence.WebhookByID(ctx, delivery.WebhookID)
	if err != nil {
		return err
	}

	policy := webhook.RetryPolicyOrDefault()
	delivery.Attempts++

	started := s.now()
	statusCode, attemptErr := s.send(ctx, webhook, delivery, policy.Timeout)
	latency := s.now().Sub(started)

	logger := s.logger.With("delivery_id", delivery.ID, "webhook_id", webhook.ID, "attempt", delivery.Attempts)

	if attemptErr == nil {
		delivery.Status = models.DeliveryStatusSuccess
		delivery.NextRetryAt = nil
		delivery.LastError = ""

		s.finishAttempt(ctx, webhook, delivery, models.ActivityDeliverySuccess, statusCode, "", latency)
		logger.Info("delivery succeeded", "status_code", statusCode, "latency", latency)

		return nil
	}

	delivery.LastError = attemptErr.Error()

	if delivery.Attempts < policy.MaxAttempts {
		// delay(n) = base * 2^(n-1)
		delay := policy.BaseDelay * (1 << (delivery.Attempts - 1))
		retryAt := s.now().Add(delay)
		delivery.Status = models.DeliveryStatusFailed
		delivery.NextRetryAt = &retryAt

		s.finishAttempt(ctx, webhook, delivery, models.ActivityDeliveryFailed, statusCode, attemptErr.Error(), latency)

		if err := s.queue.Schedule(ctx, delivery.ID, retryAt); err != nil {
			logger.Error("failed to schedule retry", "error", err)
		}

		logger.Warn("delivery failed, retry scheduled", "error", attemptErr, "retry_at", retryAt)

		return nil
	}

	// Final attempt: abandon and bump the failure counter exactly once.
	delivery.Status = models.DeliveryStatusAbandoned
	delivery.NextRetryAt = nil

	s.finishAttempt(ctx, webhook, delivery, models.ActivityDeliveryAbandoned, statusCode, attemptErr.Error(), latency)
	logger.Error("delivery abandoned", "error", attemptErr, "attempts", delivery.Attempts)

	return nil
}

// DeliverByID loads and attempts one delivery; the delivery workers'
// entry point.
func (s *Service) DeliverByID(ctx context.Context, deliveryID string) error {
	delivery, err := s.persistence.DeliveryByID(ctx, deliveryID)
	if err != nil {
		return err
	}

	return s.Deliver(ctx, delivery)
}

// Sweep re-queues every failed delivery whose retry time has elapsed.
func (s *Service) Sweep(ctx context.Context) error {
	due, err := s.persistence.DueDeliveries(ctx, s.now())
	if err != nil {
		return err
	}

	for _, delivery := range due {
		err := s.publisher.Publish(ctx, events.DeliveryTopic, delivery.ID, events.DeliveryQueued{
			BaseEvent:  events.NewBaseEvent(events.DeliveryQueuedEvent),
			DeliveryID: delivery.ID,
			WebhookID:  delivery.WebhookID,
		})
		if err != nil {
			s.logger.Error("failed to re-queue delivery", "delivery_id", delivery.ID, "error", err)
		}
	}

	return nil
}

// Run drives the sweep loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info("delivery sweep started", "interval", s.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("delivery sweep stopped")

			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("delivery sweep failed", "error", err)
			}
		}
	}
}

// send posts the delivery payload. Non-2xx responses and transport
// errors both count as failed attempts.
func (s *Service) send(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery, timeout time.Duration) (int, error) {
	body, err := json.Marshal(delivery.Payload)
	if err != nil {
		return 0, errs.Config(fmt.Errorf("marshal delivery payload: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, errs.Misconfigured(fmt.Errorf("build delivery request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(eventHeader, delivery.EventKind)
	req.Header.Set(deliveryHeader, delivery.ID)
	req.Header.Set(webhookHeader, webhook.ID)

	for name, value := range webhook.Headers {
		req.Header.Set(name, value)
	}

	if webhook.Secret != "" {
		req.Header.Set(signatureHeader, Sign(webhook.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errs.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errs.Transient(fmt.Errorf("endpoint returned %d", resp.StatusCode))
	}

	return resp.StatusCode, nil
}

// finishAttempt persists the delivery state, the attempt's activity
// entry, and the webhook counters for terminal outcomes.
func (s *Service) finishAttempt(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery, kind models.ActivityKind, statusCode int, errText string, latency time.Duration) {
	delivery.UpdatedAt = s.now()

	if err := s.persistence.SaveDelivery(ctx, delivery); err != nil {
		s.logger.Error("failed to save delivery", "delivery_id", delivery.ID, "error", err)
	}

	entry := &models.ActivityLogEntry{
		ID:         uuid.New().String(),
		DeliveryID: delivery.ID,
		WebhookID:  webhook.ID,
		Kind:       kind,
		StatusCode: statusCode,
		Error:      errText,
		Latency:    latency,
		CreatedAt:  s.now(),
	}

	if err := s.persistence.AppendActivityLog(ctx, entry); err != nil {
		s.logger.Error("failed to append activity log", "delivery_id", delivery.ID, "error", err)
	}

	switch kind {
	case models.ActivityDeliverySuccess:
		if err := s.persistence.IncrementWebhookCounters(ctx, webhook.ID, true, s.now()); err != nil {
			s.logger.Error("failed to increment success counter", "webhook_id", webhook.ID, "error", err)
		}
	case models.ActivityDeliveryAbandoned:
		if err := s.persistence.IncrementWebhookCounters(ctx, webhook.ID, false, s.now()); err != nil {
			s.logger.Error("failed to increment failure counter", "webhook_id", webhook.ID, "error", err)
		}
	case models.ActivityDeliveryFailed:
		// Counters move on terminal outcomes only.
	}
}

// Sign computes the delivery signature over the exact bytes sent:
// hex HMAC-SHA256 with a "sha256=" prefix.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}
