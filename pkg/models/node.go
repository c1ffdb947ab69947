// Package models defines the core domain models for the automation engine.
package models

import "time"

// NodeKind is the closed set of node categories a workflow graph can contain.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindBranch  NodeKind = "branch"
	NodeKindDelay   NodeKind = "delay"
)

// Built-in trigger node types.
const (
	NodeTypeTriggerDate         = "trigger:date"
	NodeTypeTriggerLinkedRecord = "trigger:linked_record"
	NodeTypeTriggerWebhook      = "trigger:webhook"
	NodeTypeTriggerConditional  = "trigger:conditional"
)

// Built-in action and control node types.
const (
	NodeTypeActionWebhook      = "action:webhook"
	NodeTypeActionUpdateRecord = "action:update_record"
	NodeTypeActionNotification = "action:notification"
	NodeTypeBranch             = "branch:condition"
	NodeTypeDelay              = "delay:duration"
)

// Output tags used to key successor sets.
const (
	OutputMain  = "main"
	OutputTrue  = "true"
	OutputFalse = "false"
)

// Node is one step in a workflow graph. Successors are keyed by output
// tag: linear nodes chain through OutputMain, branch nodes through
// OutputTrue/OutputFalse. The graph reachable from the trigger node must
// be acyclic along Next; cycles are a construction error on the caller's
// side and are not checked at run time.
type Node struct {
	ID      string              `json:"id"     validate:"required"`
	Kind    NodeKind            `json:"kind"   validate:"required"`
	Type    string              `json:"type"   validate:"required"`
	Name    string              `json:"name"`
	Config  map[string]any      `json:"config"`
	Next    map[string][]string `json:"next,omitempty"`
	Enabled bool                `json:"enabled"`
}

// IsTriggerNode reports whether the node is the workflow's entry point.
func (n *Node) IsTriggerNode() bool {
	return n.Kind == NodeKindTrigger
}

// Successors returns the ordered successor ids for an output tag.
func (n *Node) Successors(tag string) []string {
	if n.Next == nil {
		return nil
	}

	return n.Next[tag]
}

// NodeResult is the outcome of a single node dispatch.
type NodeResult struct {
	NodeID     string         `json:"node_id"`
	OutputTag  string         `json:"output_tag"`
	Data       map[string]any `json:"data,omitempty"`
	RetryCount int            `json:"retry_count"`
	Duration   time.Duration  `json:"duration"`
}
