package models

// Operator is the comparison applied by a condition against a payload
// or record field value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorStartsWith  Operator = "starts_with"
	OperatorEndsWith    Operator = "ends_with"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
	OperatorCustom      Operator = "custom"
)

// GroupLogic combines the conditions inside one group.
type GroupLogic string

const (
	GroupLogicAnd GroupLogic = "and"
	GroupLogicOr  GroupLogic = "or"
)

// EvaluationMode combines condition groups in a conditional trigger.
type EvaluationMode string

const (
	EvaluationModeAll    EvaluationMode = "all_must_match"
	EvaluationModeAny    EvaluationMode = "any_can_match"
	EvaluationModeCustom EvaluationMode = "custom_logic"
)

// Condition is one atomic (field, operator, value) check.
type Condition struct {
	FieldID  string   `json:"field_id" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ConditionGroup is an ordered list of conditions joined by Logic.
type ConditionGroup struct {
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	Logic      GroupLogic  `json:"logic"`
}
