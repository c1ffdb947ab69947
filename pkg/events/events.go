// Package events defines the event types flowing through the engine's
// queues: external trigger events in, workflow lifecycle and delivery
// events out.
package events

import (
	"errors"
	"strings"
	"time"
)

type EventType string

// Queue topics.
const (
	TriggerTopic  = "gridbase.automation.triggers"
	RunTopic      = "gridbase.automation.runs"
	DeliveryTopic = "gridbase.automation.deliveries"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// External trigger events.
	ScheduleTickEvent    EventType = "trigger.schedule_tick"
	RecordChangedEvent   EventType = "trigger.record_changed"
	WebhookReceivedEvent EventType = "trigger.webhook_received"
	ReevaluateEvent      EventType = "trigger.reevaluate"

	// Workflow lifecycle events.
	WorkflowTriggeredEvent EventType = "workflow.triggered"
	WorkflowFinishedEvent  EventType = "workflow.finished"
	WorkflowFailedEvent    EventType = "workflow.failed"

	// Delivery queue events.
	DeliveryQueuedEvent EventType = "delivery.queued"
)

// Record change kinds a linked-record trigger can watch.
const (
	ChangeLinkedRecordCreated = "linked_record_created"
	ChangeLinkedRecordUpdated = "linked_record_updated"
	ChangeLinkedRecordDeleted = "linked_record_deleted"
	ChangeLinkAdded           = "link_added"
	ChangeLinkRemoved         = "link_removed"
	ChangeAny                 = "any_change"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps an event with its type and creation time.
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// RecordChange is a row-mutation notification from the record store.
type RecordChange struct {
	TableID       string         `json:"table_id"`
	RecordID      string         `json:"record_id"`
	Kind          string         `json:"kind"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	LinkFieldID   string         `json:"link_field_id,omitempty"`
	LinkedRecord  map[string]any `json:"linked_record,omitempty"`
}

// WebhookRequest carries an inbound HTTP trigger request. Body is the
// raw bytes so signature auth can verify the exact payload received.
type WebhookRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// Header returns a request header, matching names case-insensitively
// the way net/http canonicalizes them.
func (r *WebhookRequest) Header(name string) string {
	if r.Headers == nil {
		return ""
	}

	if v, ok := r.Headers[name]; ok {
		return v
	}

	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return ""
}

// TriggerEvent is one external occurrence the evaluators decide on: a
// scheduler tick, a record mutation, an inbound webhook request, or a
// re-evaluation request. Exactly one of Change/Request is set for the
// corresponding kinds.
type TriggerEvent struct {
	BaseEvent

	Now     time.Time       `json:"now"`
	Record  map[string]any  `json:"record,omitempty"`
	Change  *RecordChange   `json:"change,omitempty"`
	Request *WebhookRequest `json:"request,omitempty"`
}

func (e TriggerEvent) GetType() EventType {
	return e.Type
}

// Validate rejects trigger events missing the variant-specific part.
func (e TriggerEvent) Validate() error {
	switch e.Type {
	case ScheduleTickEvent, ReevaluateEvent:
		return nil
	case RecordChangedEvent:
		if e.Change == nil {
			return errors.New("record_changed event requires a change")
		}

		return nil
	case WebhookReceivedEvent:
		if e.Request == nil {
			return errors.New("webhook_received event requires a request")
		}

		return nil
	default:
		return errors.New("unknown trigger event type " + string(e.Type))
	}
}

// WorkflowTriggered is published when an evaluator decides a workflow
// should run.
type WorkflowTriggered struct {
	BaseEvent

	WorkflowID  string         `json:"workflow_id"`
	TriggerID   string         `json:"trigger_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type WorkflowFinished struct {
	BaseEvent

	WorkflowID  string        `json:"workflow_id"`
	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (w WorkflowFinished) GetType() EventType {
	return WorkflowFinishedEvent
}

type WorkflowFailed struct {
	BaseEvent

	WorkflowID  string        `json:"workflow_id"`
	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

// DeliveryQueued asks the delivery workers to attempt one delivery.
type DeliveryQueued struct {
	BaseEvent

	DeliveryID string `json:"delivery_id"`
	WebhookID  string `json:"webhook_id"`
}

func (d DeliveryQueued) GetType() EventType {
	return DeliveryQueuedEvent
}
