package models

import "time"

// DeliveryStatus tracks one outbound delivery. success and abandoned are
// terminal: a delivery in either state is never retried.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusAbandoned DeliveryStatus = "abandoned"
)

// RetryPolicy bounds delivery attempts for one webhook.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" validate:"required,min=1"`
	BaseDelay   time.Duration `json:"base_delay"`
	Timeout     time.Duration `json:"timeout"`
}

const (
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = 5 * time.Second
	DefaultDeliveryLimit = 30 * time.Second
)

// DefaultRetryPolicy is applied when a webhook carries no explicit policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Timeout:     DefaultDeliveryLimit,
	}
}

// Webhook is an outbound delivery channel owned by a workspace.
type Webhook struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspace_id"`
	Name        string            `json:"name"        validate:"required"`
	URL         string            `json:"url"         validate:"required,url"`
	Active      bool              `json:"active"`
	EventKinds  []string          `json:"event_kinds"`
	Secret      string            `json:"secret,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Retry       RetryPolicy       `json:"retry"`

	SuccessCount  int64      `json:"success_count"`
	FailureCount  int64      `json:"failure_count"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllowsEvent reports whether eventKind is on the webhook's allow-list.
func (w *Webhook) AllowsEvent(eventKind string) bool {
	for _, kind := range w.EventKinds {
		if kind == eventKind {
			return true
		}
	}

	return false
}

// RetryPolicyOrDefault returns the configured policy with defaults
// filled in for zero fields.
func (w *Webhook) RetryPolicyOrDefault() RetryPolicy {
	policy := w.Retry
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}

	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultBaseDelay
	}

	if policy.Timeout <= 0 {
		policy.Timeout = DefaultDeliveryLimit
	}

	return policy
}

// WebhookDelivery is one attempt-tracked instance of sending one event
// through one webhook.
type WebhookDelivery struct {
	ID          string         `json:"id"`
	WebhookID   string         `json:"webhook_id"`
	EventKind   string         `json:"event_kind"`
	Payload     map[string]any `json:"payload"`
	Status      DeliveryStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Terminal reports whether the delivery may never be attempted again.
func (d *WebhookDelivery) Terminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusAbandoned
}

// ActivityKind classifies one delivery attempt in the activity log.
type ActivityKind string

const (
	ActivityDeliverySuccess   ActivityKind = "delivery_success"
	ActivityDeliveryFailed    ActivityKind = "delivery_failed"
	ActivityDeliveryAbandoned ActivityKind = "delivery_abandoned"
)

// ActivityLogEntry records one delivery attempt, successful or not.
type ActivityLogEntry struct {
	ID         string        `json:"id"`
	DeliveryID string        `json:"delivery_id"`
	WebhookID  string        `json:"webhook_id"`
	Kind       ActivityKind  `json:"kind"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
	CreatedAt  time.Time     `json:"created_at"`
}
