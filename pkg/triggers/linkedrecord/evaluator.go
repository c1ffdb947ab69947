// Package linkedrecord provides the trigger evaluator reacting to
// mutations of records linked through a specific link field.
package linkedrecord

import (
	"context"
	"log/slog"

	"github.com/gridbase/gridbase/pkg/conditions"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
)

// Evaluator decides firing for one linked-record trigger.
type Evaluator struct {
	LinkFieldID      string
	ChangeKinds      []string
	WatchedFields    []string
	LinkedConditions []models.Condition

	logger *slog.Logger
}

func (e *Evaluator) Evaluate(_ context.Context, event events.TriggerEvent) (protocol.Decision, error) {
	if event.Type != events.RecordChangedEvent || event.Change == nil {
		return protocol.Decision{}, nil
	}

	change := event.Change
	if change.LinkFieldID != e.LinkFieldID {
		return protocol.Decision{}, nil
	}

	if !e.kindMatches(change.Kind) {
		return protocol.Decision{}, nil
	}

	// Field updates only count when they touch a watched field. Other
	// change kinds (link add/remove, create, delete) are not field
	// scoped, so the watch list does not apply.
	if change.Kind == events.ChangeLinkedRecordUpdated && len(e.WatchedFields) > 0 {
		if !intersects(change.ChangedFields, e.WatchedFields) {
			return protocol.Decision{}, nil
		}
	}

	if len(e.LinkedConditions) > 0 {
		passed, err := conditions.EvaluateAll(e.LinkedConditions, change.LinkedRecord)
		if err != nil {
			return protocol.Decision{}, err
		}

		if !passed {
			return protocol.Decision{}, nil
		}
	}

	payload := map[string]any{
		"trigger_type":   models.NodeTypeTriggerLinkedRecord,
		"change_kind":    change.Kind,
		"table_id":       change.TableID,
		"record_id":      change.RecordID,
		"link_field_id":  change.LinkFieldID,
		"changed_fields": change.ChangedFields,
		"linked_record":  change.LinkedRecord,
	}

	for k, v := range event.Record {
		payload[k] = v
	}

	return protocol.Decision{Fire: true, Payload: payload}, nil
}

func (e *Evaluator) kindMatches(kind string) bool {
	if len(e.ChangeKinds) == 0 {
		return true
	}

	for _, want := range e.ChangeKinds {
		if want == events.ChangeAny || want == kind {
			return true
		}
	}

	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}

	return false
}
