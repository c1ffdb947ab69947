package date

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
)

func tickAt(now time.Time, record map[string]any) events.TriggerEvent {
	return events.TriggerEvent{
		BaseEvent: events.BaseEvent{Type: events.ScheduleTickEvent},
		Now:       now,
		Record:    record,
	}
}

func TestEvaluator_DateConditions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		evaluator Evaluator
		record    map[string]any
		wantFire  bool
	}{
		{
			name:      "date reached fires on the same day",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached},
			record:    map[string]any{"due": "2026-03-15"},
			wantFire:  true,
		},
		{
			name:      "date reached skips other days",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached},
			record:    map[string]any{"due": "2026-03-16"},
			wantFire:  false,
		},
		{
			name:      "days before fires ahead of the value",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionDaysBefore, DaysOffset: 1},
			record:    map[string]any{"due": "2026-03-16"},
			wantFire:  true,
		},
		{
			name:      "days after fires past the value",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionDaysAfter, DaysOffset: 3},
			record:    map[string]any{"due": "2026-03-12"},
			wantFire:  true,
		},
		{
			name:      "overdue fires for any earlier day",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionOverdue},
			record:    map[string]any{"due": "2026-03-01"},
			wantFire:  true,
		},
		{
			name:      "overdue does not fire on the same day",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionOverdue},
			record:    map[string]any{"due": "2026-03-15"},
			wantFire:  false,
		},
		{
			name:      "missing field never fires",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached},
			record:    map[string]any{},
			wantFire:  false,
		},
		{
			name:      "rfc3339 values parse",
			evaluator: Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached},
			record:    map[string]any{"due": "2026-03-15T18:00:00Z"},
			wantFire:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision, err := tc.evaluator.Evaluate(context.Background(), tickAt(now, tc.record))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFire, decision.Fire)
		})
	}
}

func TestEvaluator_CheckTimeGate(t *testing.T) {
	t.Parallel()

	evaluator := Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached, CheckTime: "09:00"}
	record := map[string]any{"due": "2026-03-15"}

	offWindow, err := evaluator.Evaluate(context.Background(),
		tickAt(time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC), record))
	require.NoError(t, err)
	assert.False(t, offWindow.Fire)

	inWindow, err := evaluator.Evaluate(context.Background(),
		tickAt(time.Date(2026, 3, 15, 9, 0, 42, 0, time.UTC), record))
	require.NoError(t, err)
	assert.True(t, inWindow.Fire)
}

func TestEvaluator_Recurring(t *testing.T) {
	t.Parallel()

	evaluator := Evaluator{
		ConditionType: ConditionRecurring,
		Pattern: models.RecurringPattern{
			Frequency: models.FrequencyWeekly,
			Weekday:   time.Monday,
		},
	}

	monday := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	decision, err := evaluator.Evaluate(context.Background(), tickAt(monday, nil))
	require.NoError(t, err)
	assert.True(t, decision.Fire)

	decision, err = evaluator.Evaluate(context.Background(), tickAt(tuesday, nil))
	require.NoError(t, err)
	assert.False(t, decision.Fire)
}

func TestEvaluator_AdditionalConditions(t *testing.T) {
	t.Parallel()

	evaluator := Evaluator{
		DateFieldID:   "due",
		ConditionType: ConditionDateReached,
		AdditionalConditions: []models.Condition{
			{FieldID: "status", Operator: models.OperatorEquals, Value: "open"},
		},
	}

	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

	decision, err := evaluator.Evaluate(context.Background(),
		tickAt(now, map[string]any{"due": "2026-03-15", "status": "closed"}))
	require.NoError(t, err)
	assert.False(t, decision.Fire)

	decision, err = evaluator.Evaluate(context.Background(),
		tickAt(now, map[string]any{"due": "2026-03-15", "status": "open"}))
	require.NoError(t, err)
	assert.True(t, decision.Fire)
	assert.Equal(t, "open", decision.Payload["status"])
	assert.Equal(t, "due", decision.Payload["date_field_id"])
}

func TestEvaluator_IgnoresForeignEvents(t *testing.T) {
	t.Parallel()

	evaluator := Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached}

	decision, err := evaluator.Evaluate(context.Background(), events.TriggerEvent{
		BaseEvent: events.BaseEvent{Type: events.RecordChangedEvent},
		Now:       time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC),
		Record:    map[string]any{"due": "2026-03-15"},
	})
	require.NoError(t, err)
	assert.False(t, decision.Fire)
}

func TestEvaluator_UnparseableDate(t *testing.T) {
	t.Parallel()

	evaluator := Evaluator{DateFieldID: "due", ConditionType: ConditionDateReached}

	_, err := evaluator.Evaluate(context.Background(),
		tickAt(time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), map[string]any{"due": "not a date"}))
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	factory := NewFactory()
	deps := protocol.Dependencies{Logger: slog.Default()}

	t.Run("valid date condition", func(t *testing.T) {
		t.Parallel()

		evaluator, err := factory.Create(map[string]any{
			"condition_type": "days_before",
			"date_field_id":  "due",
			"days_offset":    float64(2),
		}, deps)
		require.NoError(t, err)

		typed, ok := evaluator.(*Evaluator)
		require.True(t, ok)
		assert.Equal(t, ConditionDaysBefore, typed.ConditionType)
		assert.Equal(t, 2, typed.DaysOffset)
	})

	t.Run("missing condition type", func(t *testing.T) {
		t.Parallel()

		_, err := factory.Create(map[string]any{}, deps)
		require.Error(t, err)
		assert.True(t, errs.IsConfig(err))
	})

	t.Run("date condition requires field", func(t *testing.T) {
		t.Parallel()

		_, err := factory.Create(map[string]any{"condition_type": "date_reached"}, deps)
		require.Error(t, err)
		assert.True(t, errs.IsConfig(err))
	})

	t.Run("recurring requires pattern", func(t *testing.T) {
		t.Parallel()

		_, err := factory.Create(map[string]any{"condition_type": "recurring"}, deps)
		require.Error(t, err)

		evaluator, err := factory.Create(map[string]any{
			"condition_type": "recurring",
			"recurring_pattern": map[string]any{
				"frequency": "daily",
			},
		}, deps)
		require.NoError(t, err)
		assert.Equal(t, models.FrequencyDaily,
			evaluator.(*Evaluator).Pattern.Frequency)
	})
}
