package event

import "sync"

// DefaultSubscriberBuffer is the channel capacity used by Subscribe when
// no size is given.
const DefaultSubscriberBuffer = 256

// Broadcaster fans values out to channel subscribers.
//
// Publish never blocks: when a subscriber's channel is full the oldest
// pending value is dropped to make room. Values are sent in publish order.
type Broadcaster[T any] struct {
	mu          sync.Mutex
	subscribers map[chan T]struct{}
	closed      bool
	dropped     uint64
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers: make(map[chan T]struct{}),
	}
}

// Subscribe returns a receive channel and a cancel function. The cancel
// function closes the channel and is safe to call more than once.
func (b *Broadcaster[T]) Subscribe(size int) (<-chan T, func(), error) {
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	ch := make(chan T, size)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrBroadcasterClosed
	}
	b.subscribers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.remove(ch) })
	}
	return ch, cancel, nil
}

func (b *Broadcaster[T]) remove(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish delivers msg to every subscriber.
func (b *Broadcaster[T]) Publish(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subscribers {
		select {
		case ch <- msg:
			continue
		default:
		}
		// Full: drop the oldest value. Only this goroutine sends while
		// holding mu, so the retry cannot block.
		select {
		case <-ch:
			b.dropped++
		default:
		}
		select {
		case ch <- msg:
		default:
			b.dropped++
		}
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns how many values were discarded for slow subscribers.
func (b *Broadcaster[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
