// Package events provides the event envelope and an in-process bus used to
// fan appointment events out to local handlers.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a base event stamped at now.
func NewBaseEvent(now time.Time) BaseEvent {
	return BaseEvent{Timestamp: now}
}

// Envelope is the serialized form of an event as it travels through the
// outbox, the live channel and the broker. ID is stable across redeliveries.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Data        json.RawMessage `json:"data"`
}

// EventName implements Event.
func (e Envelope) EventName() string { return e.Type }

// Wrap serializes an event into an envelope with a fresh ID.
func Wrap(aggregateID uuid.UUID, event Event) (Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:          uuid.New(),
		Type:        event.EventName(),
		AggregateID: aggregateID,
		OccurredAt:  event.OccurredAt(),
		Data:        data,
	}, nil
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Envelope) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Envelope) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Envelope) error {
	return f(ctx, event)
}

// Bus is the interface for publishing and subscribing to events.
type Bus interface {
	// PublishSync sends an event and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Envelope) error

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventName string, handler Handler)
}
