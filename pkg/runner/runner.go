// Package runner walks a workflow's node graph for one triggering
// event: dispatching nodes, retrying failures, classifying errors, and
// writing the execution log.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/tracer"
)

const (
	// DefaultRunBudget bounds the wall-clock time of one run.
	DefaultRunBudget = 300 * time.Second

	maxNodeAttempts = 3
	retryBaseDelay  = time.Second
)

// Runner executes workflow runs. Dispatchers are resolved into a table
// at construction; a node type without a dispatcher is a configuration
// error at run time.
type Runner struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	dispatchers map[string]protocol.NodeDispatcher
	tracer      trace.Tracer
	logger      *slog.Logger

	budget time.Duration
	sleep  func(time.Duration)
	now    func() time.Time
}

// Option adjusts runner construction.
type Option func(*Runner)

// WithBudget overrides the wall-clock run budget.
func WithBudget(budget time.Duration) Option {
	return func(r *Runner) { r.budget = budget }
}

// WithSleep replaces the backoff sleep; tests inject a recorder here.
func WithSleep(sleep func(time.Duration)) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(
	store persistence.Persistence,
	publisher eventbus.EventPublisher,
	dispatchers map[string]protocol.NodeDispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	r := &Runner{
		persistence: store,
		publisher:   publisher,
		dispatchers: dispatchers,
		tracer:      otel.Tracer("gridbase/runner"),
		logger:      logger.With("module", "runner"),
		budget:      DefaultRunBudget,
		sleep:       time.Sleep,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes one triggered workflow to a terminal status and returns
// the execution context. The returned error reflects infrastructure
// failures only; a run that finished with status failed returns nil.
func (r *Runner) Run(ctx context.Context, workflow *models.Workflow, payload map[string]any) (*models.ExecutionContext, error) {
	ctx, span := r.tracer.Start(ctx, "runner.run", trace.WithAttributes(
		attribute.String("gridbase.workflow.id", workflow.ID),
	))
	defer span.End()

	trigger, err := workflow.TriggerNode()
	if err != nil {
		return nil, err
	}

	executionID := uuid.New().String()
	ectx := models.NewExecutionContext(executionID, workflow.ID, payload)
	ectx.StartedAt = r.now()

	logger := r.logger.With("workflow_id", workflow.ID, "execution_id", executionID)
	logger.Info("workflow run started")

	runErr := r.executeBranch(ctx, workflow, trigger.Successors(models.OutputMain), ectx, logger)
	if runErr != nil {
		ectx.Status = models.ExecutionStatusFailed
	} else {
		ectx.Status = models.ExecutionStatusCompleted
	}

	r.appendRunEntry(ctx, ectx, runErr, logger)
	r.publishOutcome(ctx, ectx, runErr)

	if runErr != nil {
		tracer.SetError(span, runErr)
		logger.Warn("workflow run failed", "error", runErr, "duration", r.now().Sub(ectx.StartedAt))

		return ectx, nil
	}

	if workflow.TestRunExpiresAt != nil {
		if err := r.persistence.ClearTestRunExpiry(ctx, workflow.ID); err != nil {
			logger.Error("failed to clear test run expiry", "error", err)
		}
	}

	logger.Info("workflow run completed", "duration", r.now().Sub(ectx.StartedAt), "path", ectx.Path)

	return ectx, nil
}

// executeBranch runs a successor set depth-first. A critical error or
// an exceeded run budget aborts the whole run; any other node failure
// is recorded and the branch continues with the next sibling.
func (r *Runner) executeBranch(ctx context.Context, workflow *models.Workflow, nodeIDs []string, ectx *models.ExecutionContext, logger *slog.Logger) error {
	for _, nodeID := range nodeIDs {
		if elapsed := r.now().Sub(ectx.StartedAt); elapsed > r.budget {
			err := errs.Criticalf("run budget of %s exceeded after %s", r.budget, elapsed)
			ectx.AddError(nodeID, err.Error(), true)

			return err
		}

		node, ok := workflow.NodeByID(nodeID)
		if !ok {
			err := errs.Criticalf("workflow %s references unknown node %q", workflow.ID, nodeID)
			ectx.AddError(nodeID, err.Error(), true)

			return err
		}

		if !node.Enabled {
			logger.Debug("skipping disabled node", "node_id", nodeID)

			continue
		}

		result, err := r.executeNodeWithRetry(ctx, node, ectx, logger)
		if err != nil {
			critical := errs.IsCritical(err)
			ectx.AddError(node.ID, err.Error(), critical)
			r.appendNodeEntry(ctx, ectx, node, result, err)

			if critical {
				return err
			}

			if errs.IsMisconfigured(err) {
				logger.Error("node failed against a misconfigured service", "node_id", node.ID, "error", err)
			} else {
				logger.Warn("node failed", "node_id", node.ID, "error", err)
			}

			continue
		}

		ectx.RecordOutput(node.ID, result.Data)
		r.appendNodeEntry(ctx, ectx, node, result, nil)

		if err := r.executeBranch(ctx, workflow, node.Successors(result.OutputTag), ectx, logger); err != nil {
			return err
		}
	}

	return nil
}

// executeNodeWithRetry dispatches one node, retrying transient
// failures with exponential backoff. Configuration errors fail on the
// first attempt; critical errors propagate immediately.
func (r *Runner) executeNodeWithRetry(ctx context.Context, node *models.Node, ectx *models.ExecutionContext, logger *slog.Logger) (models.NodeResult, error) {
	dispatcher, ok := r.dispatchers[node.Type]
	if !ok {
		return models.NodeResult{NodeID: node.ID}, errs.Configf("no dispatcher for node type %q", node.Type)
	}

	started := r.now()

	var lastErr error

	for attempt := 1; attempt <= maxNodeAttempts; attempt++ {
		output, err := dispatcher.Dispatch(ctx, node, ectx, logger)
		if err == nil {
			return models.NodeResult{
				NodeID:     node.ID,
				OutputTag:  output.Tag,
				Data:       output.Data,
				RetryCount: attempt - 1,
				Duration:   r.now().Sub(started),
			}, nil
		}

		lastErr = err

		if errs.IsConfig(err) || errs.IsCritical(err) || errs.IsMisconfigured(err) {
			break
		}

		if attempt < maxNodeAttempts {
			delay := retryBaseDelay * (1 << (attempt - 1))
			logger.Debug("retrying node", "node_id", node.ID, "attempt", attempt, "delay", delay)
			r.sleep(delay)
		}
	}

	return models.NodeResult{
		NodeID:   node.ID,
		Duration: r.now().Sub(started),
	}, lastErr
}

func (r *Runner) appendNodeEntry(ctx context.Context, ectx *models.ExecutionContext, node *models.Node, result models.NodeResult, nodeErr error) {
	entry := &models.ExecutionLogEntry{
		ID:          uuid.New().String(),
		ExecutionID: ectx.ID,
		WorkflowID:  ectx.WorkflowID,
		NodeID:      node.ID,
		Status:      models.ExecutionStatusCompleted,
		Output:      result.Data,
		Duration:    result.Duration,
		RetryCount:  result.RetryCount,
		CreatedAt:   r.now(),
	}

	if nodeErr != nil {
		entry.Status = models.ExecutionStatusFailed
		entry.Error = nodeErr.Error()
	}

	if err := r.persistence.AppendExecutionLog(ctx, entry); err != nil {
		r.logger.Error("failed to append node execution log", "node_id", node.ID, "error", err)
	}
}

// appendRunEntry writes the single workflow-level log entry every run
// ends with, success or failure.
func (r *Runner) appendRunEntry(ctx context.Context, ectx *models.ExecutionContext, runErr error, logger *slog.Logger) {
	entry := &models.ExecutionLogEntry{
		ID:          uuid.New().String(),
		ExecutionID: ectx.ID,
		WorkflowID:  ectx.WorkflowID,
		Status:      ectx.Status,
		Output:      ectx.Payload,
		Path:        ectx.Path,
		Errors:      ectx.Errors,
		Duration:    r.now().Sub(ectx.StartedAt),
		CreatedAt:   r.now(),
	}

	if runErr != nil {
		entry.Error = runErr.Error()
	}

	if err := r.persistence.AppendExecutionLog(ctx, entry); err != nil {
		logger.Error("failed to append workflow execution log", "error", err)
	}
}

func (r *Runner) publishOutcome(ctx context.Context, ectx *models.ExecutionContext, runErr error) {
	duration := r.now().Sub(ectx.StartedAt)

	var event eventbus.Event
	if runErr != nil {
		event = events.WorkflowFailed{
			BaseEvent:   events.NewBaseEvent(events.WorkflowFailedEvent),
			WorkflowID:  ectx.WorkflowID,
			ExecutionID: ectx.ID,
			Error:       runErr.Error(),
			Duration:    duration,
		}
	} else {
		event = events.WorkflowFinished{
			BaseEvent:   events.NewBaseEvent(events.WorkflowFinishedEvent),
			WorkflowID:  ectx.WorkflowID,
			ExecutionID: ectx.ID,
			Duration:    duration,
		}
	}

	if err := r.publisher.Publish(ctx, events.RunTopic, ectx.WorkflowID, event); err != nil {
		r.logger.Error("failed to publish run outcome", "execution_id", ectx.ID, "error", err)
	}
}
