// Package conditions evaluates atomic field conditions and condition
// groups against payload or record values.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/models"
)

// Evaluate applies one condition to the given field value. Unknown
// operators are configuration errors.
func Evaluate(cond models.Condition, value any) (bool, error) {
	switch cond.Operator {
	case models.OperatorEquals:
		return equal(value, cond.Value), nil
	case models.OperatorNotEquals:
		return !equal(value, cond.Value), nil
	case models.OperatorGreaterThan:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a > b })
	case models.OperatorLessThan:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a < b })
	case models.OperatorContains:
		return strings.Contains(stringify(value), stringify(cond.Value)), nil
	case models.OperatorStartsWith:
		return strings.HasPrefix(stringify(value), stringify(cond.Value)), nil
	case models.OperatorEndsWith:
		return strings.HasSuffix(stringify(value), stringify(cond.Value)), nil
	case models.OperatorIsEmpty:
		return isEmpty(value), nil
	case models.OperatorIsNotEmpty:
		return !isEmpty(value), nil
	case models.OperatorCustom:
		return CoerceBool(value)
	default:
		return false, errs.Configf("unknown condition operator %q", cond.Operator)
	}
}

// EvaluateGroup combines the group's conditions with its logic. An
// empty group matches.
func EvaluateGroup(group models.ConditionGroup, fields map[string]any) (bool, error) {
	if len(group.Conditions) == 0 {
		return true, nil
	}

	logic := group.Logic
	if logic == "" {
		logic = models.GroupLogicAnd
	}

	for _, cond := range group.Conditions {
		matched, err := Evaluate(cond, fields[cond.FieldID])
		if err != nil {
			return false, err
		}

		switch logic {
		case models.GroupLogicAnd:
			if !matched {
				return false, nil
			}
		case models.GroupLogicOr:
			if matched {
				return true, nil
			}
		default:
			return false, errs.Configf("unknown group logic %q", logic)
		}
	}

	return logic == models.GroupLogicAnd, nil
}

// EvaluateAll ANDs a flat condition list, the combination used by date
// trigger additional_conditions and linked-record condition sets.
func EvaluateAll(conds []models.Condition, fields map[string]any) (bool, error) {
	for _, cond := range conds {
		matched, err := Evaluate(cond, fields[cond.FieldID])
		if err != nil {
			return false, err
		}

		if !matched {
			return false, nil
		}
	}

	return true, nil
}

// CoerceBool converts loosely typed condition outputs to a boolean.
func CoerceBool(exp any) (bool, error) {
	if exp == nil {
		return false, nil
	}

	switch v := exp.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return false, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, errs.Configf("cannot convert string %q to boolean", v)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, errs.Configf("cannot convert %T to boolean", exp)
	}
}

func equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}

	return stringify(a) == stringify(b)
}

func numericCompare(a, b any, cmp func(a, b float64) bool) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	if !aok || !bok {
		return false, nil
	}

	return cmp(af, bf), nil
}

func isEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	default:
		return false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case float32:
		return float64(value), true
	case float64:
		return value, true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}
