package event

import (
	"context"
	"sync/atomic"

	"github.com/dshills/devpilot/internal/event/topic"
)

// Handler processes events delivered by the bus.
type Handler func(ctx context.Context, env Envelope) error

// Subscription is a registered handler for a topic pattern.
type Subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	active  atomic.Bool
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the subscribed topic pattern.
func (s *Subscription) Topic() topic.Topic {
	return s.pattern
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// Cancel stops delivery to this subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.active.Store(false)
}
