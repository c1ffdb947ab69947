package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

const webhookColumns = `id, workspace_id, name, url, active, event_kinds, secret, headers, retry, success_count, failure_count, last_success_at, created_at, updated_at`

func (p *Persistence) ActiveWebhooks(ctx context.Context) ([]*models.Webhook, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE active = true ORDER BY id`)
	if err != nil {
		return nil, persistence.NewStoreError("ActiveWebhooks", "", err)
	}
	defer func() { _ = rows.Close() }()

	var webhooks []*models.Webhook

	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ActiveWebhooks", "", err)
		}

		webhooks = append(webhooks, webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ActiveWebhooks", "", err)
	}

	return webhooks, nil
}

func (p *Persistence) WebhookByID(ctx context.Context, id string) (*models.Webhook, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)

	webhook, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("WebhookByID", id, persistence.ErrWebhookNotFound)
		}

		return nil, persistence.NewStoreError("WebhookByID", id, err)
	}

	return webhook, nil
}

func (p *Persistence) SaveWebhook(ctx context.Context, webhook *models.Webhook) error {
	webhook.UpdatedAt = time.Now().UTC()

	eventKinds, err := marshalJSON(webhook.EventKinds)
	if err != nil {
		return persistence.NewStoreError("SaveWebhook", webhook.ID, err)
	}

	headers, err := marshalJSON(webhook.Headers)
	if err != nil {
		return persistence.NewStoreError("SaveWebhook", webhook.ID, err)
	}

	retry, err := marshalJSON(webhook.Retry)
	if err != nil {
		return persistence.NewStoreError("SaveWebhook", webhook.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, workspace_id, name, url, active, event_kinds, secret, headers, retry, success_count, failure_count, last_success_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			active = EXCLUDED.active,
			event_kinds = EXCLUDED.event_kinds,
			secret = EXCLUDED.secret,
			headers = EXCLUDED.headers,
			retry = EXCLUDED.retry,
			updated_at = EXCLUDED.updated_at`,
		webhook.ID, webhook.WorkspaceID, webhook.Name, webhook.URL, webhook.Active,
		eventKinds, webhook.Secret, headers, retry,
		webhook.SuccessCount, webhook.FailureCount, webhook.LastSuccessAt,
		webhook.CreatedAt, webhook.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveWebhook", webhook.ID, err)
	}

	return nil
}

// IncrementWebhookCounters bumps the delivery counters in SQL rather
// than read-modify-write, so the counts stay correct under concurrent
// deliveries against the same webhook.
func (p *Persistence) IncrementWebhookCounters(ctx context.Context, webhookID string, success bool, at time.Time) error {
	var (
		result sql.Result
		err    error
	)

	if success {
		result, err = p.db.ExecContext(ctx, `
			UPDATE webhooks SET success_count = success_count + 1, last_success_at = $2, updated_at = NOW()
			WHERE id = $1`, webhookID, at)
	} else {
		result, err = p.db.ExecContext(ctx, `
			UPDATE webhooks SET failure_count = failure_count + 1, updated_at = NOW()
			WHERE id = $1`, webhookID)
	}

	if err != nil {
		return persistence.NewStoreError("IncrementWebhookCounters", webhookID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("IncrementWebhookCounters", webhookID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("IncrementWebhookCounters", webhookID, persistence.ErrWebhookNotFound)
	}

	return nil
}

func (p *Persistence) SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	delivery.UpdatedAt = time.Now().UTC()

	payload, err := marshalJSON(delivery.Payload)
	if err != nil {
		return persistence.NewStoreError("SaveDelivery", delivery.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, event_kind, payload, status, attempts, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			next_retry_at = EXCLUDED.next_retry_at,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		delivery.ID, delivery.WebhookID, delivery.EventKind, payload, delivery.Status,
		delivery.Attempts, delivery.NextRetryAt, delivery.LastError,
		delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveDelivery", delivery.ID, err)
	}

	return nil
}

func (p *Persistence) DeliveryByID(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, webhook_id, event_kind, payload, status, attempts, next_retry_at, COALESCE(last_error, ''), created_at, updated_at
		FROM webhook_deliveries WHERE id = $1`, id)

	delivery, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("DeliveryByID", id, persistence.ErrDeliveryNotFound)
		}

		return nil, persistence.NewStoreError("DeliveryByID", id, err)
	}

	return delivery, nil
}

func (p *Persistence) DueDeliveries(ctx context.Context, now time.Time) ([]*models.WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, webhook_id, event_kind, payload, status, attempts, next_retry_at, COALESCE(last_error, ''), created_at, updated_at
		FROM webhook_deliveries
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at`,
		models.DeliveryStatusFailed, now)
	if err != nil {
		return nil, persistence.NewStoreError("DueDeliveries", "", err)
	}
	defer func() { _ = rows.Close() }()

	deliveries := make([]*models.WebhookDelivery, 0)

	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, persistence.NewStoreError("DueDeliveries", "", err)
		}

		deliveries = append(deliveries, delivery)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("DueDeliveries", "", err)
	}

	return deliveries, nil
}

func (p *Persistence) AppendActivityLog(ctx context.Context, entry *models.ActivityLogEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, delivery_id, webhook_id, kind, status_code, error, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, ''), $7, $8)`,
		entry.ID, entry.DeliveryID, entry.WebhookID, entry.Kind,
		entry.StatusCode, entry.Error, entry.Latency.Milliseconds(), entry.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("AppendActivityLog", entry.DeliveryID, err)
	}

	return nil
}

func (p *Persistence) ActivityLog(ctx context.Context, deliveryID string) ([]*models.ActivityLogEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, delivery_id, webhook_id, kind, COALESCE(status_code, 0), COALESCE(error, ''), latency_ms, created_at
		FROM activity_log WHERE delivery_id = $1 ORDER BY created_at, id`,
		deliveryID)
	if err != nil {
		return nil, persistence.NewStoreError("ActivityLog", deliveryID, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*models.ActivityLogEntry, 0)

	for rows.Next() {
		var (
			entry     models.ActivityLogEntry
			latencyMs int64
		)

		err := rows.Scan(&entry.ID, &entry.DeliveryID, &entry.WebhookID, &entry.Kind,
			&entry.StatusCode, &entry.Error, &latencyMs, &entry.CreatedAt)
		if err != nil {
			return nil, persistence.NewStoreError("ActivityLog", deliveryID, err)
		}

		entry.Latency = time.Duration(latencyMs) * time.Millisecond
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ActivityLog", deliveryID, err)
	}

	return entries, nil
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var (
		webhook    models.Webhook
		eventKinds []byte
		secret     sql.NullString
		headers    []byte
		retry      []byte
	)

	err := row.Scan(
		&webhook.ID, &webhook.WorkspaceID, &webhook.Name, &webhook.URL, &webhook.Active,
		&eventKinds, &secret, &headers, &retry,
		&webhook.SuccessCount, &webhook.FailureCount, &webhook.LastSuccessAt,
		&webhook.CreatedAt, &webhook.UpdatedAt)
	if err != nil {
		return nil, err
	}

	webhook.Secret = secret.String

	if err := unmarshalJSON(eventKinds, &webhook.EventKinds); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(headers, &webhook.Headers); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(retry, &webhook.Retry); err != nil {
		return nil, err
	}

	return &webhook, nil
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var (
		delivery models.WebhookDelivery
		payload  []byte
	)

	err := row.Scan(
		&delivery.ID, &delivery.WebhookID, &delivery.EventKind, &payload,
		&delivery.Status, &delivery.Attempts, &delivery.NextRetryAt, &delivery.LastError,
		&delivery.CreatedAt, &delivery.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(payload, &delivery.Payload); err != nil {
		return nil, err
	}

	return &delivery, nil
}
