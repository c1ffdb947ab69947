// Package file provides file-based persistence for the automation
// core: one JSON document per entity, grouped in per-entity
// directories under the configured root. Suited to development and
// single-process deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements persistence.Persistence on the file system.
// A process-wide mutex serializes writes; counter updates happen under
// the same lock so increments are never lost within one process.
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates a file persistence rooted at the given
// directory. Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// Workflows

func (fp *Persistence) PublishedWorkflows(_ context.Context) ([]*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	all, err := readAll[models.Workflow](fp.dir("workflows"))
	if err != nil {
		return nil, persistence.NewStoreError("PublishedWorkflows", "", err)
	}

	published := make([]*models.Workflow, 0, len(all))

	for _, wf := range all {
		if wf.Published {
			published = append(published, wf)
		}
	}

	sort.Slice(published, func(i, j int) bool { return published[i].ID < published[j].ID })

	return published, nil
}

func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.workflowByIDLocked(id)
}

func (fp *Persistence) workflowByIDLocked(id string) (*models.Workflow, error) {
	wf, err := readOne[models.Workflow](fp.entityPath("workflows", id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return wf, nil
}

func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.saveWorkflowLocked(workflow)
}

func (fp *Persistence) saveWorkflowLocked(workflow *models.Workflow) error {
	workflow.UpdatedAt = time.Now().UTC()

	if err := writeOne(fp.entityPath("workflows", workflow.ID), workflow); err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (fp *Persistence) AddWorkflowNodes(_ context.Context, workflowID string, nodes []*models.Node) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	workflow, err := fp.workflowByIDLocked(workflowID)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		if _, exists := workflow.NodeByID(node.ID); exists {
			return persistence.NewStoreError("AddWorkflowNodes", node.ID, persistence.ErrNodeAlreadyExists)
		}
	}

	// The whole workflow document is rewritten in one rename, so the
	// append is all-or-nothing.
	workflow.Nodes = append(workflow.Nodes, nodes...)

	return fp.saveWorkflowLocked(workflow)
}

func (fp *Persistence) ClearTestRunExpiry(_ context.Context, workflowID string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	workflow, err := fp.workflowByIDLocked(workflowID)
	if err != nil {
		return err
	}

	if workflow.TestRunExpiresAt == nil {
		return nil
	}

	workflow.TestRunExpiresAt = nil

	return fp.saveWorkflowLocked(workflow)
}

// Execution log

func (fp *Persistence) AppendExecutionLog(_ context.Context, entry *models.ExecutionLogEntry) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	path := fp.entityPath("executions", entry.ExecutionID)

	entries, err := readOne[[]*models.ExecutionLogEntry](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	var log []*models.ExecutionLogEntry
	if entries != nil {
		log = *entries
	}

	log = append(log, entry)

	if err := writeOne(path, log); err != nil {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	return nil
}

func (fp *Persistence) ExecutionLog(_ context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := readOne[[]*models.ExecutionLogEntry](fp.entityPath("executions", executionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.ExecutionLogEntry{}, nil
		}

		return nil, persistence.NewStoreError("ExecutionLog", executionID, err)
	}

	return *entries, nil
}

// Webhooks

func (fp *Persistence) ActiveWebhooks(_ context.Context) ([]*models.Webhook, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	all, err := readAll[models.Webhook](fp.dir("webhooks"))
	if err != nil {
		return nil, persistence.NewStoreError("ActiveWebhooks", "", err)
	}

	active := make([]*models.Webhook, 0, len(all))

	for _, webhook := range all {
		if webhook.Active {
			active = append(active, webhook)
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	return active, nil
}

func (fp *Persistence) WebhookByID(_ context.Context, id string) (*models.Webhook, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.webhookByIDLocked(id)
}

func (fp *Persistence) webhookByIDLocked(id string) (*models.Webhook, error) {
	webhook, err := readOne[models.Webhook](fp.entityPath("webhooks", id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("WebhookByID", id, persistence.ErrWebhookNotFound)
		}

		return nil, persistence.NewStoreError("WebhookByID", id, err)
	}

	return webhook, nil
}

func (fp *Persistence) SaveWebhook(_ context.Context, webhook *models.Webhook) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	webhook.UpdatedAt = time.Now().UTC()

	if err := writeOne(fp.entityPath("webhooks", webhook.ID), webhook); err != nil {
		return persistence.NewStoreError("SaveWebhook", webhook.ID, err)
	}

	return nil
}

func (fp *Persistence) IncrementWebhookCounters(_ context.Context, webhookID string, success bool, at time.Time) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	webhook, err := fp.webhookByIDLocked(webhookID)
	if err != nil {
		return err
	}

	if success {
		webhook.SuccessCount++
		webhook.LastSuccessAt = &at
	} else {
		webhook.FailureCount++
	}

	webhook.UpdatedAt = time.Now().UTC()

	if err := writeOne(fp.entityPath("webhooks", webhookID), webhook); err != nil {
		return persistence.NewStoreError("IncrementWebhookCounters", webhookID, err)
	}

	return nil
}

// Deliveries

func (fp *Persistence) SaveDelivery(_ context.Context, delivery *models.WebhookDelivery) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	delivery.UpdatedAt = time.Now().UTC()

	if err := writeOne(fp.entityPath("deliveries", delivery.ID), delivery); err != nil {
		return persistence.NewStoreError("SaveDelivery", delivery.ID, err)
	}

	return nil
}

func (fp *Persistence) DeliveryByID(_ context.Context, id string) (*models.WebhookDelivery, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	delivery, err := readOne[models.WebhookDelivery](fp.entityPath("deliveries", id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("DeliveryByID", id, persistence.ErrDeliveryNotFound)
		}

		return nil, persistence.NewStoreError("DeliveryByID", id, err)
	}

	return delivery, nil
}

func (fp *Persistence) DueDeliveries(_ context.Context, now time.Time) ([]*models.WebhookDelivery, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	all, err := readAll[models.WebhookDelivery](fp.dir("deliveries"))
	if err != nil {
		return nil, persistence.NewStoreError("DueDeliveries", "", err)
	}

	due := make([]*models.WebhookDelivery, 0)

	for _, delivery := range all {
		if delivery.Status != models.DeliveryStatusFailed {
			continue
		}

		if delivery.NextRetryAt != nil && !delivery.NextRetryAt.After(now) {
			due = append(due, delivery)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })

	return due, nil
}

func (fp *Persistence) AppendActivityLog(_ context.Context, entry *models.ActivityLogEntry) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	path := fp.entityPath("activity", entry.DeliveryID)

	entries, err := readOne[[]*models.ActivityLogEntry](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewStoreError("AppendActivityLog", entry.DeliveryID, err)
	}

	var log []*models.ActivityLogEntry
	if entries != nil {
		log = *entries
	}

	log = append(log, entry)

	if err := writeOne(path, log); err != nil {
		return persistence.NewStoreError("AppendActivityLog", entry.DeliveryID, err)
	}

	return nil
}

func (fp *Persistence) ActivityLog(_ context.Context, deliveryID string) ([]*models.ActivityLogEntry, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	entries, err := readOne[[]*models.ActivityLogEntry](fp.entityPath("activity", deliveryID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.ActivityLogEntry{}, nil
		}

		return nil, persistence.NewStoreError("ActivityLog", deliveryID, err)
	}

	return *entries, nil
}

// Templates

func (fp *Persistence) TemplateByID(_ context.Context, id string) (*models.AutomationTemplate, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.templateByIDLocked(id)
}

func (fp *Persistence) templateByIDLocked(id string) (*models.AutomationTemplate, error) {
	template, err := readOne[models.AutomationTemplate](fp.entityPath("templates", id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	return template, nil
}

func (fp *Persistence) SaveTemplate(_ context.Context, template *models.AutomationTemplate) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := writeOne(fp.entityPath("templates", template.Trigger.ID), template); err != nil {
		return persistence.NewStoreError("SaveTemplate", template.Trigger.ID, err)
	}

	return nil
}

func (fp *Persistence) IncrementTemplateUsage(_ context.Context, templateID string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	template, err := fp.templateByIDLocked(templateID)
	if err != nil {
		return err
	}

	template.Trigger.UsageCount++

	if err := writeOne(fp.entityPath("templates", templateID), template); err != nil {
		return persistence.NewStoreError("IncrementTemplateUsage", templateID, err)
	}

	return nil
}

// helpers

func (fp *Persistence) dir(entity string) string {
	return filepath.Join(fp.root, entity)
}

func (fp *Persistence) entityPath(entity, id string) string {
	return filepath.Join(fp.root, entity, id+".json")
}

func readOne[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return &value, nil
}

func readAll[T any](dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*T{}, nil
		}

		return nil, err
	}

	values := make([]*T, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		value, err := readOne[T](filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, nil
}

// writeOne writes via temp file + rename so a document is replaced as
// a unit even if the process dies mid-write.
func writeOne(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), path)
}
