package date

import (
	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/internal/config"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (*Factory) ID() string { return models.NodeTypeTriggerDate }

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date_field_id": map[string]any{
				"type":        "string",
				"description": "Field holding the date to compare against",
			},
			"condition_type": map[string]any{
				"type": "string",
				"enum": []string{
					string(ConditionDateReached),
					string(ConditionDaysBefore),
					string(ConditionDaysAfter),
					string(ConditionRecurring),
					string(ConditionOverdue),
				},
			},
			"days_offset": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
			"recurring_pattern": map[string]any{
				"type": "object",
			},
			"check_time": map[string]any{
				"type":        "string",
				"pattern":     "^[0-2][0-9]:[0-5][0-9]$",
				"description": "Optional HH:MM gate; empty evaluates every tick",
			},
			"additional_conditions": map[string]any{
				"type": "array",
			},
		},
		"required": []string{"condition_type"},
	}
}

func (*Factory) Create(raw map[string]any, deps protocol.Dependencies) (protocol.TriggerEvaluator, error) {
	conditionType := ConditionType(config.String(raw, "condition_type"))
	if conditionType == "" {
		return nil, errs.Configf("date trigger: condition_type is required")
	}

	evaluator := &Evaluator{
		DateFieldID:   config.String(raw, "date_field_id"),
		ConditionType: conditionType,
		DaysOffset:    config.Int(raw, "days_offset"),
		CheckTime:     config.String(raw, "check_time"),
		logger:        deps.Logger,
	}

	switch conditionType {
	case ConditionDateReached, ConditionDaysBefore, ConditionDaysAfter, ConditionOverdue:
		if evaluator.DateFieldID == "" {
			return nil, errs.Configf("date trigger: date_field_id is required for %s", conditionType)
		}
	case ConditionRecurring:
		pattern, err := config.RecurringPattern(raw, "recurring_pattern")
		if err != nil {
			return nil, err
		}

		evaluator.Pattern = pattern
	default:
		return nil, errs.Configf("date trigger: unknown condition type %q", conditionType)
	}

	conds, err := config.Conditions(raw, "additional_conditions")
	if err != nil {
		return nil, err
	}

	evaluator.AdditionalConditions = conds

	return evaluator, nil
}
