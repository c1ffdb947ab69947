package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
	"github.com/gridbase/gridbase/pkg/persistence/file"
)

func newStore(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func sampleWorkflow(id string, published bool) *models.Workflow {
	return &models.Workflow{
		ID:        id,
		Name:      "workflow " + id,
		Published: published,
		Nodes: []*models.Node{{
			ID:      "trigger",
			Kind:    models.NodeKindTrigger,
			Type:    models.NodeTypeTriggerDate,
			Enabled: true,
		}},
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf_b", true)))
	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf_a", true)))
	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf_draft", false)))

	published, err := store.PublishedWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, "wf_a", published[0].ID)
	assert.Equal(t, "wf_b", published[1].ID)

	loaded, err := store.WorkflowByID(ctx, "wf_a")
	require.NoError(t, err)
	assert.Equal(t, "workflow wf_a", loaded.Name)

	_, err = store.WorkflowByID(ctx, "wf_missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestAddWorkflowNodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf_1", true)))

	nodes := []*models.Node{
		{ID: "a", Kind: models.NodeKindAction, Type: models.NodeTypeActionWebhook, Enabled: true},
		{ID: "b", Kind: models.NodeKindAction, Type: models.NodeTypeActionNotification, Enabled: true},
	}

	require.NoError(t, store.AddWorkflowNodes(ctx, "wf_1", nodes))

	workflow, err := store.WorkflowByID(ctx, "wf_1")
	require.NoError(t, err)
	assert.Len(t, workflow.Nodes, 3)

	// Duplicate node ids are rejected before anything is written.
	err = store.AddWorkflowNodes(ctx, "wf_1", []*models.Node{
		{ID: "c", Kind: models.NodeKindAction, Type: models.NodeTypeActionWebhook},
		{ID: "a", Kind: models.NodeKindAction, Type: models.NodeTypeActionWebhook},
	})
	require.ErrorIs(t, err, persistence.ErrNodeAlreadyExists)

	workflow, err = store.WorkflowByID(ctx, "wf_1")
	require.NoError(t, err)
	assert.Len(t, workflow.Nodes, 3)
}

func TestClearTestRunExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	expiry := time.Now().UTC().Add(time.Hour)
	workflow := sampleWorkflow("wf_test", true)
	workflow.TestRunExpiresAt = &expiry

	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.NoError(t, store.ClearTestRunExpiry(ctx, "wf_test"))

	loaded, err := store.WorkflowByID(ctx, "wf_test")
	require.NoError(t, err)
	assert.Nil(t, loaded.TestRunExpiresAt)

	// Clearing an already-clear workflow is a no-op.
	require.NoError(t, store.ClearTestRunExpiry(ctx, "wf_test"))
}

func TestExecutionLogAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	for i, status := range []models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusCompleted} {
		require.NoError(t, store.AppendExecutionLog(ctx, &models.ExecutionLogEntry{
			ID:          string(rune('a' + i)),
			ExecutionID: "exec_1",
			WorkflowID:  "wf_1",
			Status:      status,
		}))
	}

	entries, err := store.ExecutionLog(ctx, "exec_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ExecutionStatusRunning, entries[0].Status)
	assert.Equal(t, models.ExecutionStatusCompleted, entries[1].Status)

	empty, err := store.ExecutionLog(ctx, "exec_unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWebhookCounters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveWebhook(ctx, &models.Webhook{
		ID:     "wh_1",
		Name:   "orders",
		URL:    "https://example.com/hook",
		Active: true,
	}))

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.IncrementWebhookCounters(ctx, "wh_1", true, at))
	require.NoError(t, store.IncrementWebhookCounters(ctx, "wh_1", false, at))

	webhook, err := store.WebhookByID(ctx, "wh_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), webhook.SuccessCount)
	assert.Equal(t, int64(1), webhook.FailureCount)
	require.NotNil(t, webhook.LastSuccessAt)
	assert.True(t, webhook.LastSuccessAt.Equal(at))

	err = store.IncrementWebhookCounters(ctx, "wh_missing", true, at)
	require.Error(t, err)
	assert.True(t, persistence.IsWebhookNotFound(err))
}

func TestActiveWebhooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveWebhook(ctx, &models.Webhook{ID: "wh_on", Name: "on", URL: "https://example.com/a", Active: true}))
	require.NoError(t, store.SaveWebhook(ctx, &models.Webhook{ID: "wh_off", Name: "off", URL: "https://example.com/b"}))

	active, err := store.ActiveWebhooks(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "wh_on", active[0].ID)
}

func TestDueDeliveries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, store.SaveDelivery(ctx, &models.WebhookDelivery{
		ID: "del_due", WebhookID: "wh_1", Status: models.DeliveryStatusFailed, NextRetryAt: &past,
	}))
	require.NoError(t, store.SaveDelivery(ctx, &models.WebhookDelivery{
		ID: "del_later", WebhookID: "wh_1", Status: models.DeliveryStatusFailed, NextRetryAt: &future,
	}))
	require.NoError(t, store.SaveDelivery(ctx, &models.WebhookDelivery{
		ID: "del_done", WebhookID: "wh_1", Status: models.DeliveryStatusSuccess,
	}))

	due, err := store.DueDeliveries(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "del_due", due[0].ID)
}

func TestActivityLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.AppendActivityLog(ctx, &models.ActivityLogEntry{
		ID: "act_1", DeliveryID: "del_1", WebhookID: "wh_1", Kind: models.ActivityDeliveryFailed,
	}))
	require.NoError(t, store.AppendActivityLog(ctx, &models.ActivityLogEntry{
		ID: "act_2", DeliveryID: "del_1", WebhookID: "wh_1", Kind: models.ActivityDeliverySuccess,
	}))

	entries, err := store.ActivityLog(ctx, "del_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActivityDeliveryFailed, entries[0].Kind)
	assert.Equal(t, models.ActivityDeliverySuccess, entries[1].Kind)
}

func TestTemplateUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveTemplate(ctx, &models.AutomationTemplate{
		Trigger: models.TriggerTemplate{
			ID:          "tpl_1",
			Name:        "due date reminder",
			Category:    models.TemplateCategoryDates,
			TriggerType: models.NodeTypeTriggerDate,
		},
	}))

	require.NoError(t, store.IncrementTemplateUsage(ctx, "tpl_1"))
	require.NoError(t, store.IncrementTemplateUsage(ctx, "tpl_1"))

	template, err := store.TemplateByID(ctx, "tpl_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), template.Trigger.UsageCount)

	err = store.IncrementTemplateUsage(ctx, "tpl_missing")
	require.Error(t, err)
	assert.True(t, persistence.IsTemplateNotFound(err))
}
