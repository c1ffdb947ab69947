package conditional

import (
	"strings"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/logic"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/internal/config"
)

// Factory builds conditional evaluators. It resolves the wrapped base
// trigger through the factories it is constructed with.
type Factory struct {
	bases map[string]protocol.EvaluatorFactory
}

func NewFactory(bases ...protocol.EvaluatorFactory) *Factory {
	byID := make(map[string]protocol.EvaluatorFactory, len(bases))
	for _, base := range bases {
		byID[base.ID()] = base
	}

	return &Factory{bases: byID}
}

func (*Factory) ID() string { return models.NodeTypeTriggerConditional }

func (f *Factory) Schema() map[string]any {
	baseTypes := make([]string, 0, len(f.bases))
	for id := range f.bases {
		baseTypes = append(baseTypes, id)
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"base_type": map[string]any{
				"type":        "string",
				"enum":        baseTypes,
				"description": "Trigger type wrapped by the condition groups",
			},
			"base_config": map[string]any{
				"type": "object",
			},
			"evaluation_mode": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.EvaluationModeAll),
					string(models.EvaluationModeAny),
					string(models.EvaluationModeCustom),
				},
			},
			"condition_groups": map[string]any{
				"type": "array",
			},
			"custom_logic": map[string]any{
				"type":        "string",
				"description": "Boolean expression over group names, e.g. (a & b) | !c",
			},
		},
		"required": []string{"base_type", "evaluation_mode"},
	}
}

func (f *Factory) Create(raw map[string]any, deps protocol.Dependencies) (protocol.TriggerEvaluator, error) {
	baseType := config.String(raw, "base_type")

	baseFactory, ok := f.bases[baseType]
	if !ok {
		return nil, errs.Configf("conditional trigger: unknown base type %q", baseType)
	}

	baseConfig, _ := raw["base_config"].(map[string]any)

	base, err := baseFactory.Create(baseConfig, deps)
	if err != nil {
		return nil, err
	}

	mode := models.EvaluationMode(config.String(raw, "evaluation_mode"))

	groups, err := config.ConditionGroups(raw, "condition_groups")
	if err != nil {
		return nil, err
	}

	evaluator := &Evaluator{
		Base:   base,
		Mode:   mode,
		Groups: groups,
		logger: deps.Logger,
	}

	switch mode {
	case models.EvaluationModeAll, models.EvaluationModeAny:
	case models.EvaluationModeCustom:
		expression := config.String(raw, "custom_logic")

		expr, err := logic.Parse(expression)
		if err != nil {
			return nil, err
		}

		// Every group the expression names must exist, and every group
		// gets a name the expression can reference.
		names := make(map[string]struct{}, len(groups))

		for _, group := range groups {
			if group.Name == "" {
				return nil, errs.Configf("conditional trigger: custom logic requires named condition groups")
			}

			names[strings.ToLower(group.Name)] = struct{}{}
		}

		if err := checkReferences(expression, names); err != nil {
			return nil, err
		}

		evaluator.expr = expr
	default:
		return nil, errs.Configf("conditional trigger: unknown evaluation mode %q", mode)
	}

	return evaluator, nil
}

// checkReferences rejects expressions naming groups that do not exist,
// so misconfigured logic fails at save time instead of on first event.
func checkReferences(expression string, names map[string]struct{}) error {
	for _, ident := range logic.Idents(expression) {
		if _, ok := names[ident]; !ok {
			return errs.Configf("conditional trigger: custom logic references unknown group %q", ident)
		}
	}

	return nil
}
