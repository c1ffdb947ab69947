// Package config holds parsing helpers shared by the trigger factories.
// Node configs arrive as map[string]any decoded from JSON, so numbers
// are float64 and nested structures are maps and slices.
package config

import (
	"encoding/json"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/models"
)

func String(raw map[string]any, key string) string {
	if value, ok := raw[key].(string); ok {
		return value
	}

	return ""
}

func Int(raw map[string]any, key string) int {
	switch value := raw[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return 0
	}
}

func Bool(raw map[string]any, key string) bool {
	if value, ok := raw[key].(bool); ok {
		return value
	}

	return false
}

func Strings(raw map[string]any, key string) []string {
	switch value := raw[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))

		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

// Conditions decodes a condition list from the raw config. A missing
// key yields an empty slice, a malformed one a configuration error.
func Conditions(raw map[string]any, key string) ([]models.Condition, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return nil, nil
	}

	var conds []models.Condition
	if err := decode(value, &conds); err != nil {
		return nil, errs.Configf("invalid %s: %v", key, err)
	}

	return conds, nil
}

// ConditionGroups decodes named condition groups for the conditional
// trigger's custom logic mode.
func ConditionGroups(raw map[string]any, key string) ([]models.ConditionGroup, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return nil, nil
	}

	var groups []models.ConditionGroup
	if err := decode(value, &groups); err != nil {
		return nil, errs.Configf("invalid %s: %v", key, err)
	}

	return groups, nil
}

func RecurringPattern(raw map[string]any, key string) (models.RecurringPattern, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return models.RecurringPattern{}, errs.Configf("%s is required", key)
	}

	var pattern models.RecurringPattern
	if err := decode(value, &pattern); err != nil {
		return models.RecurringPattern{}, errs.Configf("invalid %s: %v", key, err)
	}

	if err := pattern.Validate(); err != nil {
		return models.RecurringPattern{}, err
	}

	return pattern, nil
}

// decode round-trips through JSON so configs authored as typed values
// in tests and as generic maps from the wire both parse the same way.
func decode(value, target any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}
