// Package conditional provides the trigger evaluator that wraps
// another evaluator and gates its firing with condition groups.
package conditional

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gridbase/gridbase/pkg/conditions"
	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/logic"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
)

// Evaluator first lets the wrapped base evaluator decide, then applies
// the condition groups to the base decision's payload. The custom
// logic expression is parsed once at construction, not per event.
type Evaluator struct {
	Base   protocol.TriggerEvaluator
	Mode   models.EvaluationMode
	Groups []models.ConditionGroup

	expr   logic.Expr
	logger *slog.Logger
}

func (e *Evaluator) Evaluate(ctx context.Context, event events.TriggerEvent) (protocol.Decision, error) {
	decision, err := e.Base.Evaluate(ctx, event)
	if err != nil || !decision.Fire {
		return protocol.Decision{}, err
	}

	passed, err := e.conditionsPass(decision.Payload)
	if err != nil {
		return protocol.Decision{}, err
	}

	if !passed {
		return protocol.Decision{}, nil
	}

	return decision, nil
}

func (e *Evaluator) conditionsPass(fields map[string]any) (bool, error) {
	switch e.Mode {
	case models.EvaluationModeAll:
		for _, group := range e.Groups {
			ok, err := conditions.EvaluateGroup(group, fields)
			if err != nil || !ok {
				return false, err
			}
		}

		return true, nil
	case models.EvaluationModeAny:
		for _, group := range e.Groups {
			ok, err := conditions.EvaluateGroup(group, fields)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}

		return len(e.Groups) == 0, nil
	case models.EvaluationModeCustom:
		results := make(map[string]bool, len(e.Groups))

		for _, group := range e.Groups {
			ok, err := conditions.EvaluateGroup(group, fields)
			if err != nil {
				return false, err
			}

			results[strings.ToLower(group.Name)] = ok
		}

		return e.expr.Eval(results)
	default:
		return false, errs.Configf("conditional trigger: unknown evaluation mode %q", e.Mode)
	}
}
