// Package date provides the date/schedule trigger evaluator: firing
// decisions derived from a record's date field and the scheduler tick.
package date

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridbase/gridbase/pkg/conditions"
	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
)

// ConditionType selects how the date field relates to "now".
type ConditionType string

const (
	ConditionDateReached ConditionType = "date_reached"
	ConditionDaysBefore  ConditionType = "days_before"
	ConditionDaysAfter   ConditionType = "days_after"
	ConditionRecurring   ConditionType = "recurring"
	ConditionOverdue     ConditionType = "overdue"
)

// Evaluator decides firing for one date trigger. Evaluation is pure
// and deterministic given the event's record and timestamp.
type Evaluator struct {
	DateFieldID          string
	ConditionType        ConditionType
	DaysOffset           int
	Pattern              models.RecurringPattern
	CheckTime            string // "HH:MM"; empty means every tick
	AdditionalConditions []models.Condition

	logger *slog.Logger
}

func (e *Evaluator) Evaluate(_ context.Context, event events.TriggerEvent) (protocol.Decision, error) {
	if event.Type != events.ScheduleTickEvent && event.Type != events.ReevaluateEvent {
		return protocol.Decision{}, nil
	}

	now := event.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// With a time-of-day gate, only the tick inside that minute window fires.
	if e.CheckTime != "" && now.Format("15:04") != e.CheckTime {
		return protocol.Decision{}, nil
	}

	matched, err := e.matchDate(now, event.Record)
	if err != nil {
		return protocol.Decision{}, err
	}

	if !matched {
		return protocol.Decision{}, nil
	}

	passed, err := conditions.EvaluateAll(e.AdditionalConditions, event.Record)
	if err != nil {
		return protocol.Decision{}, err
	}

	if !passed {
		return protocol.Decision{}, nil
	}

	payload := map[string]any{
		"trigger_type":  models.NodeTypeTriggerDate,
		"date_field_id": e.DateFieldID,
		"fired_at":      now.Format(time.RFC3339),
	}

	for k, v := range event.Record {
		payload[k] = v
	}

	return protocol.Decision{Fire: true, Payload: payload}, nil
}

func (e *Evaluator) matchDate(now time.Time, record map[string]any) (bool, error) {
	if e.ConditionType == ConditionRecurring {
		return e.Pattern.Matches(now), nil
	}

	raw, ok := record[e.DateFieldID]
	if !ok || raw == nil {
		return false, nil
	}

	value, err := parseDate(raw)
	if err != nil {
		return false, err
	}

	switch e.ConditionType {
	case ConditionDateReached:
		return sameDay(value, now), nil
	case ConditionDaysBefore:
		// Fires DaysOffset days ahead of the field value.
		return sameDay(value, now.AddDate(0, 0, e.DaysOffset)), nil
	case ConditionDaysAfter:
		return sameDay(value.AddDate(0, 0, e.DaysOffset), now), nil
	case ConditionOverdue:
		return value.Before(startOfDay(now)), nil
	default:
		return false, errs.Configf("date trigger: unknown condition type %q", e.ConditionType)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func parseDate(raw any) (time.Time, error) {
	switch value := raw.(type) {
	case time.Time:
		return value, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, value); err == nil {
				return t, nil
			}
		}

		return time.Time{}, errs.Configf("date trigger: cannot parse date %q", value)
	default:
		return time.Time{}, errs.Configf("date trigger: unsupported date value type %T", raw)
	}
}
