// Package eventbus provides the queuing layer between trigger sources,
// the engine workers, and the delivery workers.
package eventbus

import (
	"context"

	"github.com/gridbase/gridbase/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context, topic string) error
}

// EventBus is the transport for trigger, run and delivery events.
// Trigger evaluation and outbound delivery subscribe on separate
// topics so a slow delivery never blocks trigger processing.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
