// Package events carries the in-process event bus the modules talk over.
// A module publishes a fact about its own domain, a lead went out, an
// appointment was confirmed, and never learns who reacts to it. The event
// definitions themselves live in internal/events; this package only holds
// the infrastructure.
package events

import (
	"context"
	"time"
)

// Event is one published fact.
type Event interface {
	// EventName identifies the event type, e.g. "leads.created".
	EventName() string
	// OccurredAt is when the fact happened, not when it was delivered.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp so concrete events only add their payload.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a new event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler reacts to events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans published events out to their subscribers.
type Bus interface {
	// Publish delivers the event to every handler subscribed to its name.
	// Delivery is asynchronous; publishers never see handler failures.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for every handler.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an event name, as returned by
	// Event.EventName().
	Subscribe(eventName string, handler Handler)
}
