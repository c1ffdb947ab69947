// Package web provides the inbound HTTP surface: the webhook trigger
// listener and health endpoint.
package web

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/google/uuid"

	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/triggers/webhook"
)

// Listener accepts inbound webhook requests, validates them against
// the registered webhook triggers, and enqueues trigger events. The
// actual firing decision is made again by the engine workers; the
// listener only answers the HTTP caller.
type Listener struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	deps        protocol.Dependencies
	factory     *webhook.Factory
}

func NewListener(store persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Listener {
	logger = logger.With("module", "web")

	return &Listener{
		persistence: store,
		publisher:   publisher,
		logger:      logger,
		deps:        protocol.Dependencies{Logger: logger},
		factory:     webhook.NewFactory(),
	}
}

func (l *Listener) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.All("/hooks/*", l.HandleHook)
	app.Get("/health", l.HealthCheck)

	return app
}

// Start blocks serving the listener on the given port.
func (l *Listener) Start(port int) error {
	return l.App().Listen(":" + strconv.Itoa(port))
}

// HandleHook resolves the webhook trigger registered for the request
// path, answers 404/405/401 for unknown paths, bad methods and failed
// auth, and otherwise enqueues a trigger event and acknowledges.
func (l *Listener) HandleHook(c fiber.Ctx) error {
	hookPath := "/" + c.Params("*")

	request := &events.WebhookRequest{
		Method:  c.Method(),
		Path:    hookPath,
		Headers: flattenHeaders(c.GetReqHeaders()),
		Body:    append([]byte(nil), c.Body()...),
	}

	evaluator, err := l.resolveTrigger(c, hookPath)
	if err != nil {
		return internalError(c, err)
	}

	if evaluator == nil {
		return notFound(c, "no webhook trigger registered for this path")
	}

	if !evaluator.AllowsMethod(request.Method) {
		return methodNotAllowed(c, "method not accepted by this webhook trigger")
	}

	if !evaluator.Authenticate(request) {
		return unauthorized(c, "authentication failed")
	}

	event := events.TriggerEvent{
		BaseEvent: events.NewBaseEvent(events.WebhookReceivedEvent),
		Now:       time.Now().UTC(),
		Request:   request,
	}
	event.ID = uuid.New().String()

	if err := l.publisher.Publish(c.Context(), events.TriggerTopic, hookPath, event); err != nil {
		l.logger.Error("failed to enqueue webhook event", "path", hookPath, "error", err)

		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":     event.ID,
		"status": "accepted",
	})
}

// resolveTrigger finds the first enabled webhook trigger listening on
// path among the published workflows.
func (l *Listener) resolveTrigger(c fiber.Ctx, path string) (*webhook.Evaluator, error) {
	workflows, err := l.persistence.PublishedWorkflows(c.Context())
	if err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		if !workflow.Runnable() {
			continue
		}

		trigger, err := workflow.TriggerNode()
		if err != nil || !trigger.Enabled || trigger.Type != models.NodeTypeTriggerWebhook {
			continue
		}

		evaluator, err := l.factory.Create(trigger.Config, l.deps)
		if err != nil {
			l.logger.Warn("skipping misconfigured webhook trigger", "workflow_id", workflow.ID, "error", err)

			continue
		}

		typed, ok := evaluator.(*webhook.Evaluator)
		if !ok || typed.Path != path {
			continue
		}

		return typed, nil
	}

	return nil, nil
}

func (l *Listener) HealthCheck(c fiber.Ctx) error {
	if err := l.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func flattenHeaders(headers map[string][]string) map[string]string {
	flat := make(map[string]string, len(headers))

	for name, values := range headers {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}

	return flat
}
