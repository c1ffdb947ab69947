package persistence

import (
	"context"
	"time"

	"github.com/gridbase/gridbase/pkg/models"
)

// Persistence is the storage contract the automation core runs
// against. Counter updates (webhook delivery counters, template usage)
// are atomic increments inside the implementation, never computed from
// a cached snapshot, so they stay correct under concurrent runs.
type Persistence interface {
	// Workflows.
	PublishedWorkflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error

	// AddWorkflowNodes appends nodes to a workflow all-or-nothing;
	// the template applier relies on this transaction boundary.
	AddWorkflowNodes(ctx context.Context, workflowID string, nodes []*models.Node) error

	// ClearTestRunExpiry removes the transient test-run flag after the
	// first successful run.
	ClearTestRunExpiry(ctx context.Context, workflowID string) error

	// Execution log (append-only).
	AppendExecutionLog(ctx context.Context, entry *models.ExecutionLogEntry) error
	ExecutionLog(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error)

	// Webhooks.
	ActiveWebhooks(ctx context.Context) ([]*models.Webhook, error)
	WebhookByID(ctx context.Context, id string) (*models.Webhook, error)
	SaveWebhook(ctx context.Context, webhook *models.Webhook) error
	IncrementWebhookCounters(ctx context.Context, webhookID string, success bool, at time.Time) error

	// Deliveries.
	SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	DeliveryByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	DueDeliveries(ctx context.Context, now time.Time) ([]*models.WebhookDelivery, error)
	AppendActivityLog(ctx context.Context, entry *models.ActivityLogEntry) error
	ActivityLog(ctx context.Context, deliveryID string) ([]*models.ActivityLogEntry, error)

	// Templates.
	TemplateByID(ctx context.Context, id string) (*models.AutomationTemplate, error)
	SaveTemplate(ctx context.Context, template *models.AutomationTemplate) error
	IncrementTemplateUsage(ctx context.Context, templateID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
