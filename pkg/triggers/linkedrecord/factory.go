package linkedrecord

import (
	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/internal/config"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (*Factory) ID() string { return models.NodeTypeTriggerLinkedRecord }

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"link_field_id": map[string]any{
				"type":        "string",
				"description": "Link field whose records are watched",
			},
			"change_kinds": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": []string{
						events.ChangeLinkedRecordCreated,
						events.ChangeLinkedRecordUpdated,
						events.ChangeLinkedRecordDeleted,
						events.ChangeLinkAdded,
						events.ChangeLinkRemoved,
						events.ChangeAny,
					},
				},
			},
			"watched_fields": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"linked_conditions": map[string]any{
				"type": "array",
			},
		},
		"required": []string{"link_field_id"},
	}
}

func (*Factory) Create(raw map[string]any, deps protocol.Dependencies) (protocol.TriggerEvaluator, error) {
	linkFieldID := config.String(raw, "link_field_id")
	if linkFieldID == "" {
		return nil, errs.Configf("linked record trigger: link_field_id is required")
	}

	kinds := config.Strings(raw, "change_kinds")
	for _, kind := range kinds {
		switch kind {
		case events.ChangeLinkedRecordCreated, events.ChangeLinkedRecordUpdated,
			events.ChangeLinkedRecordDeleted, events.ChangeLinkAdded,
			events.ChangeLinkRemoved, events.ChangeAny:
		default:
			return nil, errs.Configf("linked record trigger: unknown change kind %q", kind)
		}
	}

	conds, err := config.Conditions(raw, "linked_conditions")
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		LinkFieldID:      linkFieldID,
		ChangeKinds:      kinds,
		WatchedFields:    config.Strings(raw, "watched_fields"),
		LinkedConditions: conds,
		logger:           deps.Logger,
	}, nil
}
