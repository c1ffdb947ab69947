package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridbase/gridbase/pkg/conditions"
	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/internal/config"
)

// Dispatchers builds the default dispatch table keyed by node type.
func Dispatchers(deps protocol.Dependencies) map[string]protocol.NodeDispatcher {
	return map[string]protocol.NodeDispatcher{
		models.NodeTypeBranch:             &branchDispatcher{},
		models.NodeTypeDelay:              &delayDispatcher{sleep: time.Sleep},
		models.NodeTypeActionWebhook:      &webhookDispatcher{delivery: deps.Delivery},
		models.NodeTypeActionUpdateRecord: &updateRecordDispatcher{records: deps.Records},
		models.NodeTypeActionNotification: &notificationDispatcher{delivery: deps.Delivery},
	}
}

// branchDispatcher evaluates a condition set against the run payload
// and selects the true or false successor set. Exactly one of the two
// runs.
type branchDispatcher struct{}

func (d *branchDispatcher) Dispatch(_ context.Context, node *models.Node, ectx *models.ExecutionContext, _ *slog.Logger) (protocol.NodeOutput, error) {
	conds, err := config.Conditions(node.Config, "conditions")
	if err != nil {
		return protocol.NodeOutput{}, err
	}

	if len(conds) == 0 {
		return protocol.NodeOutput{}, errs.Configf("branch node %s has no conditions", node.ID)
	}

	passed, err := conditions.EvaluateAll(conds, ectx.Payload)
	if err != nil {
		return protocol.NodeOutput{}, err
	}

	tag := models.OutputFalse
	if passed {
		tag = models.OutputTrue
	}

	return protocol.NodeOutput{Tag: tag, Data: map[string]any{"condition_result": passed}}, nil
}

// delayDispatcher pauses the branch for a configured duration. The run
// budget still applies across the sleep.
type delayDispatcher struct {
	sleep func(time.Duration)
}

func (d *delayDispatcher) Dispatch(ctx context.Context, node *models.Node, _ *models.ExecutionContext, logger *slog.Logger) (protocol.NodeOutput, error) {
	raw := config.String(node.Config, "duration")
	if raw == "" {
		return protocol.NodeOutput{}, errs.Configf("delay node %s requires a duration", node.ID)
	}

	duration, err := time.ParseDuration(raw)
	if err != nil {
		return protocol.NodeOutput{}, errs.Configf("delay node %s: invalid duration %q", node.ID, raw)
	}

	if duration < 0 {
		return protocol.NodeOutput{}, errs.Configf("delay node %s: negative duration", node.ID)
	}

	logger.Debug("delaying branch", "node_id", node.ID, "duration", duration)
	d.sleep(duration)

	if err := ctx.Err(); err != nil {
		return protocol.NodeOutput{}, errs.Critical(err)
	}

	return protocol.NodeOutput{Tag: models.OutputMain}, nil
}

// webhookDispatcher hands the run payload to the delivery service.
// Delivery happens asynchronously on the delivery workers; this node
// only enqueues.
type webhookDispatcher struct {
	delivery protocol.Deliverer
}

func (d *webhookDispatcher) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext, _ *slog.Logger) (protocol.NodeOutput, error) {
	webhookID := config.String(node.Config, "webhook_id")
	if webhookID == "" {
		return protocol.NodeOutput{}, errs.Configf("webhook node %s requires a webhook_id", node.ID)
	}

	eventKind := config.String(node.Config, "event_kind")
	if eventKind == "" {
		eventKind = "workflow.action"
	}

	if err := d.delivery.Trigger(ctx, webhookID, eventKind, ectx.Payload); err != nil {
		return protocol.NodeOutput{}, err
	}

	return protocol.NodeOutput{
		Tag:  models.OutputMain,
		Data: map[string]any{"webhook_id": webhookID, "event_kind": eventKind},
	}, nil
}

// updateRecordDispatcher writes field values through the record store.
// Field values support payload references of the form {"$payload": key}.
type updateRecordDispatcher struct {
	records protocol.RecordStore
}

func (d *updateRecordDispatcher) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext, _ *slog.Logger) (protocol.NodeOutput, error) {
	tableID := config.String(node.Config, "table_id")
	if tableID == "" {
		return protocol.NodeOutput{}, errs.Configf("update record node %s requires a table_id", node.ID)
	}

	recordID := config.String(node.Config, "record_id")
	if recordID == "" {
		recordID, _ = ectx.Payload["record_id"].(string)
	}

	if recordID == "" {
		return protocol.NodeOutput{}, errs.Configf("update record node %s: no record_id in config or payload", node.ID)
	}

	rawFields, ok := node.Config["fields"].(map[string]any)
	if !ok || len(rawFields) == 0 {
		return protocol.NodeOutput{}, errs.Configf("update record node %s requires fields", node.ID)
	}

	fields := make(map[string]any, len(rawFields))
	for fieldID, value := range rawFields {
		fields[fieldID] = resolvePayloadRef(value, ectx.Payload)
	}

	if err := d.records.UpdateRecord(ctx, tableID, recordID, fields); err != nil {
		return protocol.NodeOutput{}, err
	}

	return protocol.NodeOutput{
		Tag:  models.OutputMain,
		Data: map[string]any{"updated_table_id": tableID, "updated_record_id": recordID},
	}, nil
}

func resolvePayloadRef(value any, payload map[string]any) any {
	ref, ok := value.(map[string]any)
	if !ok {
		return value
	}

	key, ok := ref["$payload"].(string)
	if !ok {
		return value
	}

	return payload[key]
}

// notificationDispatcher fans the run payload out to the workspace
// notification webhook.
type notificationDispatcher struct {
	delivery protocol.Deliverer
}

func (d *notificationDispatcher) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext, _ *slog.Logger) (protocol.NodeOutput, error) {
	webhookID := config.String(node.Config, "notification_webhook_id")
	if webhookID == "" {
		return protocol.NodeOutput{}, errs.Configf("notification node %s requires a notification_webhook_id", node.ID)
	}

	message := config.String(node.Config, "message")

	payload := map[string]any{
		"message":      message,
		"workflow_id":  ectx.WorkflowID,
		"execution_id": ectx.ID,
	}

	for k, v := range ectx.Payload {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}

	if err := d.delivery.Trigger(ctx, webhookID, "workflow.notification", payload); err != nil {
		return protocol.NodeOutput{}, err
	}

	return protocol.NodeOutput{Tag: models.OutputMain, Data: map[string]any{"notified": true}}, nil
}
