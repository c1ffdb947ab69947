package models

import "time"

// Placeholder suffixes recognized during template application. A string
// config value ending in one of these is treated as a placeholder name
// to be resolved against the caller's field mappings.
const (
	PlaceholderFieldSuffix = "_field"
	PlaceholderTableSuffix = "_table"
)

// TemplateCategory groups catalog entries for browsing.
type TemplateCategory string

const (
	TemplateCategoryDates         TemplateCategory = "dates"
	TemplateCategoryRecords       TemplateCategory = "records"
	TemplateCategoryNotifications TemplateCategory = "notifications"
	TemplateCategoryIntegrations  TemplateCategory = "integrations"
)

// TriggerTemplate is an immutable catalog entry describing a trigger
// skeleton with named placeholders. Application never mutates the
// template; only its usage counter is incremented, atomically in the
// owning store.
type TriggerTemplate struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"     validate:"required"`
	Category    TemplateCategory `json:"category" validate:"required"`
	TriggerType string           `json:"trigger_type" validate:"required"`
	Config      map[string]any   `json:"config"`

	// RequiredFieldTypes maps placeholder name to the field type the
	// mapped field must have (enforced by the surrounding CRUD layer).
	RequiredFieldTypes map[string]string `json:"required_field_types,omitempty"`

	UsageCount int64     `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActionTemplate is one action skeleton inside a trigger template's
// chain, applied in order after the trigger node.
type ActionTemplate struct {
	Name       string         `json:"name"`
	ActionType string         `json:"action_type" validate:"required"`
	NodeKind   NodeKind       `json:"node_kind"`
	Config     map[string]any `json:"config"`
}

// AutomationTemplate bundles one trigger skeleton with its ordered
// action skeletons.
type AutomationTemplate struct {
	Trigger TriggerTemplate  `json:"trigger"`
	Actions []ActionTemplate `json:"actions"`
}
