package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/devpilot/internal/event/topic"
)

// Event is a typed event. Events are immutable once created.
type Event[T any] struct {
	// Type is the hierarchical event type (e.g., "log.record.appended").
	Type topic.Topic

	// Payload contains the event-specific data.
	Payload T

	// Metadata contains standard event information.
	Metadata Metadata
}

// Metadata contains standard information attached to every event.
type Metadata struct {
	// ID is a unique identifier for this event instance.
	ID string

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Source identifies the component that published the event.
	Source string
}

// NewEvent creates a new event with the given type and payload.
func NewEvent[T any](eventType topic.Topic, payload T, source string) Event[T] {
	return Event[T]{
		Type:    eventType,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}

// EventTopic returns the event's topic for type-erased handling.
func (e Event[T]) EventTopic() topic.Topic {
	return e.Type
}

// EventMetadata returns the event's metadata for type-erased handling.
func (e Event[T]) EventMetadata() Metadata {
	return e.Metadata
}

// EventPayload returns the payload as any.
func (e Event[T]) EventPayload() any {
	return e.Payload
}

// TopicProvider is implemented by types that can provide their topic.
type TopicProvider interface {
	EventTopic() topic.Topic
}

type metadataProvider interface {
	EventMetadata() Metadata
}

type payloadProvider interface {
	EventPayload() any
}

// Envelope wraps any event for type-erased handling.
type Envelope struct {
	Topic    topic.Topic
	Payload  any
	Metadata Metadata
}

// ToEnvelope converts an event to an Envelope. Events that do not implement
// TopicProvider yield an empty Envelope.
func ToEnvelope(event any) Envelope {
	tp, ok := event.(TopicProvider)
	if !ok {
		return Envelope{}
	}

	env := Envelope{
		Topic:   tp.EventTopic(),
		Payload: event,
	}
	if pp, ok := event.(payloadProvider); ok {
		env.Payload = pp.EventPayload()
	}
	if mp, ok := event.(metadataProvider); ok {
		env.Metadata = mp.EventMetadata()
	}
	return env
}

// PayloadAs extracts a typed payload from an Envelope.
func PayloadAs[T any](env Envelope) (T, bool) {
	v, ok := env.Payload.(T)
	return v, ok
}
