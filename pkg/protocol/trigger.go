// Package protocol defines the contracts between the engine and its
// pluggable parts: trigger evaluators, node dispatchers, and the
// external record store.
package protocol

import (
	"context"
	"log/slog"

	"github.com/gridbase/gridbase/pkg/events"
)

// Decision is an evaluator's verdict for one (trigger, event) pair.
type Decision struct {
	Fire    bool
	Payload map[string]any
}

// TriggerEvaluator turns an external event into a firing decision plus
// the payload that seeds the run. Evaluators must be safe for
// concurrent use; evaluation errors are swallowed at the per-trigger
// boundary by the engine and treated as "did not fire".
type TriggerEvaluator interface {
	Evaluate(ctx context.Context, event events.TriggerEvent) (Decision, error)
}

// EvaluatorFactory builds evaluators from node configuration. The
// factory table is assembled once at engine construction; there is no
// runtime type registry.
type EvaluatorFactory interface {
	// ID returns the trigger node type this factory serves.
	ID() string

	// Schema returns the JSON schema the node config must satisfy.
	Schema() map[string]any

	Create(config map[string]any, deps Dependencies) (TriggerEvaluator, error)
}

// Deliverer hands outbound events to the webhook delivery service.
// Filtering by webhook state and event allow-list happens inside the
// service; callers fire and forget.
type Deliverer interface {
	Trigger(ctx context.Context, webhookID, eventKind string, payload map[string]any) error
}

// Dependencies are handed to factories and dispatchers at construction.
type Dependencies struct {
	Logger   *slog.Logger
	Records  RecordStore
	Delivery Deliverer
}
