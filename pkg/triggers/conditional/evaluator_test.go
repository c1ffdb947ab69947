package conditional

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/triggers/date"
)

func newFactory() *Factory {
	return NewFactory(date.NewFactory())
}

func tick(record map[string]any) events.TriggerEvent {
	return events.TriggerEvent{
		BaseEvent: events.BaseEvent{Type: events.ScheduleTickEvent},
		Now:       time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		Record:    record,
	}
}

func baseDateConfig() map[string]any {
	return map[string]any{
		"condition_type": "date_reached",
		"date_field_id":  "due",
	}
}

func TestEvaluator_Modes(t *testing.T) {
	t.Parallel()

	deps := protocol.Dependencies{Logger: slog.Default()}

	statusOpen := map[string]any{
		"name": "open",
		"conditions": []any{
			map[string]any{"field_id": "status", "operator": "equals", "value": "open"},
		},
		"logic": "and",
	}
	highPriority := map[string]any{
		"name": "urgent",
		"conditions": []any{
			map[string]any{"field_id": "priority", "operator": "equals", "value": "high"},
		},
		"logic": "and",
	}

	record := map[string]any{"due": "2026-03-15", "status": "open", "priority": "low"}

	tests := []struct {
		name     string
		config   map[string]any
		wantFire bool
	}{
		{
			name: "all_must_match requires every group",
			config: map[string]any{
				"base_type":        models.NodeTypeTriggerDate,
				"base_config":      baseDateConfig(),
				"evaluation_mode":  "all_must_match",
				"condition_groups": []any{statusOpen, highPriority},
			},
			wantFire: false,
		},
		{
			name: "any_can_match needs one group",
			config: map[string]any{
				"base_type":        models.NodeTypeTriggerDate,
				"base_config":      baseDateConfig(),
				"evaluation_mode":  "any_can_match",
				"condition_groups": []any{statusOpen, highPriority},
			},
			wantFire: true,
		},
		{
			name: "custom logic combines groups",
			config: map[string]any{
				"base_type":        models.NodeTypeTriggerDate,
				"base_config":      baseDateConfig(),
				"evaluation_mode":  "custom_logic",
				"condition_groups": []any{statusOpen, highPriority},
				"custom_logic":     "open & !urgent",
			},
			wantFire: true,
		},
		{
			name: "custom logic can veto",
			config: map[string]any{
				"base_type":        models.NodeTypeTriggerDate,
				"base_config":      baseDateConfig(),
				"evaluation_mode":  "custom_logic",
				"condition_groups": []any{statusOpen, highPriority},
				"custom_logic":     "open & urgent",
			},
			wantFire: false,
		},
		{
			name: "all_must_match with no groups fires",
			config: map[string]any{
				"base_type":       models.NodeTypeTriggerDate,
				"base_config":     baseDateConfig(),
				"evaluation_mode": "all_must_match",
			},
			wantFire: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			evaluator, err := newFactory().Create(tc.config, deps)
			require.NoError(t, err)

			decision, err := evaluator.Evaluate(context.Background(), tick(record))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFire, decision.Fire)
		})
	}
}

func TestEvaluator_BaseDecidesFirst(t *testing.T) {
	t.Parallel()

	deps := protocol.Dependencies{Logger: slog.Default()}

	evaluator, err := newFactory().Create(map[string]any{
		"base_type":       models.NodeTypeTriggerDate,
		"base_config":     baseDateConfig(),
		"evaluation_mode": "any_can_match",
	}, deps)
	require.NoError(t, err)

	// Conditions never run when the base does not fire.
	decision, err := evaluator.Evaluate(context.Background(),
		tick(map[string]any{"due": "2026-12-24"}))
	require.NoError(t, err)
	assert.False(t, decision.Fire)
}

func TestFactory_CustomLogicValidation(t *testing.T) {
	t.Parallel()

	deps := protocol.Dependencies{Logger: slog.Default()}

	group := map[string]any{
		"name": "open",
		"conditions": []any{
			map[string]any{"field_id": "status", "operator": "equals", "value": "open"},
		},
		"logic": "and",
	}

	tests := []struct {
		name   string
		config map[string]any
	}{
		{
			name: "unknown base type",
			config: map[string]any{
				"base_type":       "trigger:nope",
				"evaluation_mode": "all_must_match",
			},
		},
		{
			name: "unknown evaluation mode",
			config: map[string]any{
				"base_type":       models.NodeTypeTriggerDate,
				"base_config":     baseDateConfig(),
				"evaluation_mode": "most_must_match",
			},
		},
		{
			name: "custom logic with syntax error",
			config: map[string]any{
				"base_type":        models.NodeTypeTriggerDate,
				"base_config":      baseDateConfig(),
				"evaluation_mode":  "custom_logic",
				"condition_groups": []any{group},
				"custom_logic":     "open &",
			},
		},
		{
			name: "custom logic naming a missing group",
			config: map[string]any{
				"base_type":        models.NodeTypeTriggerDate,
				"base_config":      baseDateConfig(),
				"evaluation_mode":  "custom_logic",
				"condition_groups": []any{group},
				"custom_logic":     "open & closed",
			},
		},
		{
			name: "custom logic over unnamed groups",
			config: map[string]any{
				"base_type":       models.NodeTypeTriggerDate,
				"base_config":     baseDateConfig(),
				"evaluation_mode": "custom_logic",
				"condition_groups": []any{map[string]any{
					"conditions": []any{
						map[string]any{"field_id": "status", "operator": "equals", "value": "open"},
					},
					"logic": "and",
				}},
				"custom_logic": "open",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := newFactory().Create(tc.config, deps)
			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
		})
	}
}
