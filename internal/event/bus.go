package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/devpilot/internal/event/topic"
)

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	Dropped       uint64
	HandlerErrors uint64
	HandlerPanics uint64
	Subscriptions int
}

// Bus routes events to subscribers by topic pattern.
//
// Publish enqueues onto a single ordered queue drained by one worker, so
// handlers observe events in publish order. PublishSync runs handlers in the
// caller's goroutine. Bus is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs []*Subscription

	queue  chan Envelope
	stopCh chan struct{}
	doneCh chan struct{}

	running atomic.Bool
	config  busConfig

	published     atomic.Uint64
	delivered     atomic.Uint64
	dropped       atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Bus{config: config}
}

// Start starts the async worker.
func (b *Bus) Start() error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrBusAlreadyRunning
	}
	b.queue = make(chan Envelope, b.config.queueSize)
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.worker(b.queue, b.stopCh, b.doneCh)
	return nil
}

// Stop stops the bus after delivering every queued event, or returns
// ErrShutdownTimeout when ctx expires first.
func (b *Bus) Stop(ctx context.Context) error {
	if !b.running.CompareAndSwap(true, false) {
		return ErrBusNotRunning
	}
	close(b.stopCh)
	select {
	case <-b.doneCh:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// IsRunning returns true if the bus is running.
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

func (b *Bus) worker(queue chan Envelope, stop, done chan struct{}) {
	defer close(done)
	ctx := context.Background()
	for {
		select {
		case env := <-queue:
			b.deliver(ctx, env)
		case <-stop:
			for {
				select {
				case env := <-queue:
					b.deliver(ctx, env)
				default:
					return
				}
			}
		}
	}
}

// Subscribe registers handler for every topic matching pattern.
func (b *Bus) Subscribe(pattern topic.Topic, handler Handler) (*Subscription, error) {
	if !pattern.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: handler,
	}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// SubscribeTyped registers a handler that receives payloads of type T only.
func SubscribeTyped[T any](b *Bus, pattern topic.Topic, fn func(ctx context.Context, payload T) error) (*Subscription, error) {
	return b.Subscribe(pattern, func(ctx context.Context, env Envelope) error {
		payload, ok := PayloadAs[T](env)
		if !ok {
			return nil
		}
		return fn(ctx, payload)
	})
}

// Unsubscribe cancels and removes sub.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			s.Cancel()
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// Publish enqueues an event for async delivery.
func (b *Bus) Publish(ctx context.Context, event any) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	env := ToEnvelope(event)
	if env.Topic == "" {
		return ErrInvalidEvent
	}

	b.published.Add(1)
	select {
	case b.queue <- env:
		return nil
	case <-ctx.Done():
		b.dropped.Add(1)
		return ctx.Err()
	default:
		b.dropped.Add(1)
		return ErrQueueFull
	}
}

// PublishSync delivers an event to matching handlers before returning.
// It does not require the bus to be started.
func (b *Bus) PublishSync(ctx context.Context, event any) error {
	env := ToEnvelope(event)
	if env.Topic == "" {
		return ErrInvalidEvent
	}
	b.published.Add(1)
	b.deliver(ctx, env)
	return nil
}

func (b *Bus) deliver(ctx context.Context, env Envelope) {
	b.mu.RLock()
	matched := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.IsActive() && env.Topic.Matches(s.pattern) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		if herr := b.invoke(ctx, s, env); herr != nil {
			if herr.Panicked {
				b.handlerPanics.Add(1)
			} else {
				b.handlerErrors.Add(1)
			}
			if b.config.errorHandler != nil {
				b.config.errorHandler(herr)
			}
			continue
		}
		b.delivered.Add(1)
	}
}

func (b *Bus) invoke(ctx context.Context, s *Subscription, env Envelope) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HandlerError{
				SubscriptionID: s.id,
				Topic:          env.Topic.String(),
				Err:            fmt.Errorf("%v", r),
				Panicked:       true,
			}
		}
	}()
	if err := s.handler(ctx, env); err != nil {
		return &HandlerError{SubscriptionID: s.id, Topic: env.Topic.String(), Err: err}
	}
	return nil
}

// Stats returns current bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Dropped:       b.dropped.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		HandlerPanics: b.handlerPanics.Load(),
		Subscriptions: n,
	}
}
