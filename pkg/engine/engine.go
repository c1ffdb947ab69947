// Package engine wires the automation core together: trigger event
// workers, workflow runs, delivery workers, and the scheduler tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/triggers/conditional"
	"github.com/gridbase/gridbase/pkg/triggers/date"
	"github.com/gridbase/gridbase/pkg/triggers/linkedrecord"
	"github.com/gridbase/gridbase/pkg/triggers/webhook"
)

// DefaultWorkers sizes each worker pool: one pool bounds concurrent
// workflow runs, a separate one bounds concurrent delivery attempts.
const DefaultWorkers = 4

// WorkflowRunner is the engine's view of the runner.
type WorkflowRunner interface {
	Run(ctx context.Context, workflow *models.Workflow, payload map[string]any) (*models.ExecutionContext, error)
}

// DeliveryWorker attempts one queued delivery.
type DeliveryWorker interface {
	DeliverByID(ctx context.Context, deliveryID string) error
	Run(ctx context.Context)
}

// TickSource drives the schedule ticks.
type TickSource interface {
	Start(ctx context.Context) error
	Stop()
}

// EvaluatorFactories returns the built-in trigger factory table keyed
// by node type. The conditional factory wraps the other three.
func EvaluatorFactories() map[string]protocol.EvaluatorFactory {
	dateFactory := date.NewFactory()
	linkedFactory := linkedrecord.NewFactory()
	webhookFactory := webhook.NewFactory()

	return map[string]protocol.EvaluatorFactory{
		dateFactory.ID():    dateFactory,
		linkedFactory.ID():  linkedFactory,
		webhookFactory.ID(): webhookFactory,
		models.NodeTypeTriggerConditional: conditional.NewFactory(
			dateFactory, linkedFactory, webhookFactory,
		),
	}
}

// Engine runs the trigger-evaluation loop. Duplicate concurrent events
// fire at-least-once; there is no dedup across workers or processes.
type Engine struct {
	persistence persistence.Persistence
	bus         eventbus.EventBus
	factories   map[string]protocol.EvaluatorFactory
	deps        protocol.Dependencies
	runner      WorkflowRunner
	delivery    DeliveryWorker
	scheduler   TickSource
	logger      *slog.Logger

	workers       int
	runSlots      chan struct{}
	deliverySlots chan struct{}

	evalMu     sync.Mutex
	evaluators map[string]builtEvaluator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// builtEvaluator caches the evaluator constructed from one workflow's
// trigger config. The cache entry is valid as long as the workflow has
// not been saved since; custom-logic expressions are therefore parsed
// once per config, not once per event.
type builtEvaluator struct {
	updatedAt time.Time
	evaluator protocol.TriggerEvaluator
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithWorkers overrides the worker pool size.
func WithWorkers(workers int) Option {
	return func(e *Engine) { e.workers = workers }
}

func New(
	store persistence.Persistence,
	bus eventbus.EventBus,
	deps protocol.Dependencies,
	runner WorkflowRunner,
	delivery DeliveryWorker,
	scheduler TickSource,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		persistence: store,
		bus:         bus,
		factories:   EvaluatorFactories(),
		deps:        deps,
		runner:      runner,
		delivery:    delivery,
		scheduler:   scheduler,
		logger:      logger.With("module", "engine"),
		workers:     DefaultWorkers,
		evaluators:  make(map[string]builtEvaluator),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.runSlots = make(chan struct{}, e.workers)
	e.deliverySlots = make(chan struct{}, e.workers)

	return e
}

// Start subscribes the trigger and delivery workers, then starts the
// scheduler tick and the delivery retry sweep.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	for _, eventType := range []events.EventType{
		events.ScheduleTickEvent,
		events.RecordChangedEvent,
		events.WebhookReceivedEvent,
		events.ReevaluateEvent,
	} {
		e.bus.Handle(eventType, e.handleTriggerEvent)
	}

	e.bus.Handle(events.DeliveryQueuedEvent, e.handleDeliveryQueued)

	if err := e.bus.Subscribe(ctx, events.TriggerTopic); err != nil {
		return fmt.Errorf("subscribe trigger topic: %w", err)
	}

	if err := e.bus.Subscribe(ctx, events.DeliveryTopic); err != nil {
		return fmt.Errorf("subscribe delivery topic: %w", err)
	}

	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.delivery.Run(ctx)
	}()

	e.logger.Info("engine started", "workers", e.workers)

	return nil
}

// Stop tears down in reverse order: tick source first, then the event
// loops, then in-flight work.
func (e *Engine) Stop(ctx context.Context) error {
	e.scheduler.Stop()

	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("engine stop timed out with work in flight")
	}

	if err := e.bus.Close(); err != nil {
		return fmt.Errorf("close event bus: %w", err)
	}

	e.logger.Info("engine stopped")

	return nil
}

// handleTriggerEvent evaluates one trigger event against every
// runnable workflow and starts runs for matches. Runs are bounded by
// the worker pool; the handler returns once all matches are dispatched.
func (e *Engine) handleTriggerEvent(ctx context.Context, raw any) error {
	event, ok := raw.(*events.TriggerEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", raw)
	}

	if err := event.Validate(); err != nil {
		e.logger.Warn("dropping invalid trigger event", "error", err)

		return nil
	}

	workflows, err := e.persistence.PublishedWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("list published workflows: %w", err)
	}

	for _, workflow := range workflows {
		if !workflow.Runnable() {
			continue
		}

		decision := e.evaluate(ctx, workflow, *event)
		if !decision.Fire {
			continue
		}

		e.dispatchRun(ctx, workflow, decision.Payload)
	}

	return nil
}

// evaluate resolves and runs the workflow's trigger evaluator.
// Evaluation errors are logged and treated as "did not fire"; one
// broken trigger must not poison the event loop.
func (e *Engine) evaluate(ctx context.Context, workflow *models.Workflow, event events.TriggerEvent) protocol.Decision {
	trigger, err := workflow.TriggerNode()
	if err != nil {
		e.logger.Warn("workflow has no trigger node", "workflow_id", workflow.ID)

		return protocol.Decision{}
	}

	if !trigger.Enabled {
		return protocol.Decision{}
	}

	evaluator, err := e.evaluatorFor(workflow, trigger)
	if err != nil {
		e.logger.Warn("failed to build trigger evaluator", "workflow_id", workflow.ID, "error", err)

		return protocol.Decision{}
	}

	decision, err := evaluator.Evaluate(ctx, event)
	if err != nil {
		e.logger.Warn("trigger evaluation failed", "workflow_id", workflow.ID, "error", err)

		return protocol.Decision{}
	}

	return decision
}

// evaluatorFor returns the cached evaluator for the workflow's trigger,
// constructing one when the workflow changed since the last event. Parsing
// custom-logic expressions happens here, so the cache keeps it off the
// per-event path.
func (e *Engine) evaluatorFor(workflow *models.Workflow, trigger *models.Node) (protocol.TriggerEvaluator, error) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	if cached, ok := e.evaluators[workflow.ID]; ok && cached.updatedAt.Equal(workflow.UpdatedAt) {
		return cached.evaluator, nil
	}

	factory, ok := e.factories[trigger.Type]
	if !ok {
		return nil, fmt.Errorf("no evaluator factory registered for trigger type %q", trigger.Type)
	}

	evaluator, err := factory.Create(trigger.Config, e.deps)
	if err != nil {
		return nil, err
	}

	e.evaluators[workflow.ID] = builtEvaluator{updatedAt: workflow.UpdatedAt, evaluator: evaluator}

	return evaluator, nil
}

// dispatchRun executes the workflow on the bounded run pool.
func (e *Engine) dispatchRun(ctx context.Context, workflow *models.Workflow, payload map[string]any) {
	select {
	case e.runSlots <- struct{}{}:
	case <-ctx.Done():
		return
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer func() { <-e.runSlots }()

		if err := e.publishTriggered(ctx, workflow, payload); err != nil {
			e.logger.Error("failed to publish workflow triggered", "workflow_id", workflow.ID, "error", err)
		}

		if _, err := e.runner.Run(ctx, workflow, payload); err != nil {
			e.logger.Error("workflow run errored", "workflow_id", workflow.ID, "error", err)
		}
	}()
}

func (e *Engine) publishTriggered(ctx context.Context, workflow *models.Workflow, payload map[string]any) error {
	trigger, err := workflow.TriggerNode()
	if err != nil {
		return err
	}

	return e.bus.Publish(ctx, events.RunTopic, workflow.ID, events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent),
		WorkflowID:  workflow.ID,
		TriggerID:   trigger.ID,
		TriggerData: payload,
	})
}

// handleDeliveryQueued hands the attempt to the bounded delivery pool so a
// slow endpoint stalls at most one slot, not the whole topic drain. Failed
// attempts are not nacked; the retry queue owns redelivery.
func (e *Engine) handleDeliveryQueued(ctx context.Context, raw any) error {
	queued, ok := raw.(*events.DeliveryQueued)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", raw)
	}

	select {
	case e.deliverySlots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer func() { <-e.deliverySlots }()

		if err := e.delivery.DeliverByID(ctx, queued.DeliveryID); err != nil {
			e.logger.Error("delivery attempt failed", "delivery_id", queued.DeliveryID, "error", err)
		}
	}()

	return nil
}
