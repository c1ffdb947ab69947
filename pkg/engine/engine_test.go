package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence/file"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/triggers/date"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
	done chan string
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{done: make(chan string, 16)}
}

func (r *recordingRunner) Run(_ context.Context, workflow *models.Workflow, _ map[string]any) (*models.ExecutionContext, error) {
	r.mu.Lock()
	r.runs = append(r.runs, workflow.ID)
	r.mu.Unlock()

	r.done <- workflow.ID

	return models.NewExecutionContext("exec", workflow.ID, nil), nil
}

type recordingDelivery struct {
	done chan string
}

func newRecordingDelivery() *recordingDelivery {
	return &recordingDelivery{done: make(chan string, 16)}
}

func (d *recordingDelivery) DeliverByID(_ context.Context, deliveryID string) error {
	d.done <- deliveryID

	return nil
}

func (d *recordingDelivery) Run(ctx context.Context) { <-ctx.Done() }

type noopScheduler struct{}

func (noopScheduler) Start(context.Context) error { return nil }
func (noopScheduler) Stop()                       {}

func dateWorkflow(id string, published, paused bool) *models.Workflow {
	return &models.Workflow{
		ID:        id,
		Name:      id,
		Published: published,
		Paused:    paused,
		Nodes: []*models.Node{{
			ID:   "trigger",
			Kind: models.NodeKindTrigger,
			Type: models.NodeTypeTriggerDate,
			Config: map[string]any{
				"condition_type": "date_reached",
				"date_field_id":  "due",
			},
			Enabled: true,
		}},
	}
}

func newTestEngine(t *testing.T) (*Engine, *file.Persistence, *eventbus.WatermillEventBus, *recordingRunner, *recordingDelivery) {
	t.Helper()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubsub, pubsub)

	store := file.NewPersistence(t.TempDir())
	runner := newRecordingRunner()
	delivery := newRecordingDelivery()

	engine := New(store, bus, protocol.Dependencies{Logger: slog.Default()},
		runner, delivery, noopScheduler{}, slog.Default())

	return engine, store, bus, runner, delivery
}

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()

	select {
	case got := <-ch:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func TestEngine_FiresMatchingWorkflow(t *testing.T) {
	t.Parallel()

	engine, store, bus, runner, _ := newTestEngine(t)

	require.NoError(t, store.SaveWorkflow(context.Background(), dateWorkflow("wf_match", true, false)))

	require.NoError(t, engine.Start(context.Background()))

	event := events.TriggerEvent{
		BaseEvent: events.NewBaseEvent(events.ReevaluateEvent),
		Now:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		Record:    map[string]any{"due": "2026-03-15"},
	}
	require.NoError(t, bus.Publish(context.Background(), events.TriggerTopic, "tick", event))

	waitFor(t, runner.done, "wf_match")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))
}

func TestEngine_SkipsUnrunnableWorkflows(t *testing.T) {
	t.Parallel()

	engine, store, bus, runner, _ := newTestEngine(t)

	require.NoError(t, store.SaveWorkflow(context.Background(), dateWorkflow("wf_paused", true, true)))
	require.NoError(t, store.SaveWorkflow(context.Background(), dateWorkflow("wf_live", true, false)))

	require.NoError(t, engine.Start(context.Background()))

	event := events.TriggerEvent{
		BaseEvent: events.NewBaseEvent(events.ReevaluateEvent),
		Now:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		Record:    map[string]any{"due": "2026-03-15"},
	}
	require.NoError(t, bus.Publish(context.Background(), events.TriggerTopic, "tick", event))

	waitFor(t, runner.done, "wf_live")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"wf_live"}, runner.runs, "paused workflows never run")
}

func TestEngine_NonMatchingEventDoesNotFire(t *testing.T) {
	t.Parallel()

	engine, store, bus, runner, _ := newTestEngine(t)

	require.NoError(t, store.SaveWorkflow(context.Background(), dateWorkflow("wf_later", true, false)))

	require.NoError(t, engine.Start(context.Background()))

	event := events.TriggerEvent{
		BaseEvent: events.NewBaseEvent(events.ReevaluateEvent),
		Now:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		Record:    map[string]any{"due": "2027-01-01"},
	}
	require.NoError(t, bus.Publish(context.Background(), events.TriggerTopic, "tick", event))

	select {
	case id := <-runner.done:
		t.Fatalf("unexpected run of %s", id)
	case <-time.After(300 * time.Millisecond):
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))
}

func TestEngine_DeliveryQueueWorker(t *testing.T) {
	t.Parallel()

	engine, _, bus, _, delivery := newTestEngine(t)

	require.NoError(t, engine.Start(context.Background()))

	queued := events.DeliveryQueued{
		BaseEvent:  events.NewBaseEvent(events.DeliveryQueuedEvent),
		DeliveryID: "del_1",
		WebhookID:  "wh_1",
	}
	require.NoError(t, bus.Publish(context.Background(), events.DeliveryTopic, "del_1", queued))

	waitFor(t, delivery.done, "del_1")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))
}

type blockingDelivery struct {
	started chan string
	release chan struct{}
}

func (d *blockingDelivery) DeliverByID(_ context.Context, deliveryID string) error {
	d.started <- deliveryID
	<-d.release

	return nil
}

func (d *blockingDelivery) Run(ctx context.Context) { <-ctx.Done() }

func TestEngine_DeliveriesRunConcurrently(t *testing.T) {
	t.Parallel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubsub, pubsub)
	store := file.NewPersistence(t.TempDir())
	delivery := &blockingDelivery{started: make(chan string, 16), release: make(chan struct{})}

	engine := New(store, bus, protocol.Dependencies{Logger: slog.Default()},
		newRecordingRunner(), delivery, noopScheduler{}, slog.Default())

	require.NoError(t, engine.Start(context.Background()))

	for _, id := range []string{"del_a", "del_b"} {
		queued := events.DeliveryQueued{
			BaseEvent:  events.NewBaseEvent(events.DeliveryQueuedEvent),
			DeliveryID: id,
			WebhookID:  "wh_1",
		}
		require.NoError(t, bus.Publish(context.Background(), events.DeliveryTopic, id, queued))
	}

	// Both attempts must be in flight while neither has finished; inline
	// handling would park the second behind the first.
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-delivery.started:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery attempt %d", i+1)
		}
	}
	assert.Equal(t, map[string]bool{"del_a": true, "del_b": true}, got)

	close(delivery.release)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))
}

type countingFactory struct {
	protocol.EvaluatorFactory

	mu      sync.Mutex
	creates int
}

func (f *countingFactory) Create(config map[string]any, deps protocol.Dependencies) (protocol.TriggerEvaluator, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()

	return f.EvaluatorFactory.Create(config, deps)
}

func (f *countingFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.creates
}

func TestEngine_ReusesTriggerEvaluators(t *testing.T) {
	t.Parallel()

	engine, store, _, _, _ := newTestEngine(t)

	counting := &countingFactory{EvaluatorFactory: date.NewFactory()}
	engine.factories = map[string]protocol.EvaluatorFactory{models.NodeTypeTriggerDate: counting}

	require.NoError(t, store.SaveWorkflow(context.Background(), dateWorkflow("wf_cache", true, false)))

	event := &events.TriggerEvent{
		BaseEvent: events.NewBaseEvent(events.ReevaluateEvent),
		Now:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		Record:    map[string]any{"due": "2027-01-01"},
	}

	require.NoError(t, engine.handleTriggerEvent(context.Background(), event))
	require.NoError(t, engine.handleTriggerEvent(context.Background(), event))
	assert.Equal(t, 1, counting.count(), "same config must not rebuild the evaluator")

	// Saving the workflow bumps UpdatedAt and invalidates the cached
	// evaluator.
	require.NoError(t, store.SaveWorkflow(context.Background(), dateWorkflow("wf_cache", true, false)))

	require.NoError(t, engine.handleTriggerEvent(context.Background(), event))
	assert.Equal(t, 2, counting.count())
}

func TestEvaluatorFactories(t *testing.T) {
	t.Parallel()

	factories := EvaluatorFactories()

	for _, id := range []string{
		models.NodeTypeTriggerDate,
		models.NodeTypeTriggerLinkedRecord,
		models.NodeTypeTriggerWebhook,
		models.NodeTypeTriggerConditional,
	} {
		factory, ok := factories[id]
		require.True(t, ok, id)
		assert.Equal(t, id, factory.ID())
		assert.NotEmpty(t, factory.Schema())
	}
}
