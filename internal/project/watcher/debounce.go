package watcher

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 300 * time.Millisecond

// Batch is a set of changes delivered together after a quiet period.
type Batch struct {
	// Paths are the root-relative paths changed, sorted.
	Paths []string

	// Ops is the union of operations seen.
	Ops Op

	// First and Last bound the event timestamps in the batch.
	First time.Time
	Last  time.Time
}

// Debouncer coalesces events into batches. Each Add restarts the quiet
// period; fn is called once the period passes with no new events.
// fn runs on a timer goroutine and never concurrently with itself.
type Debouncer struct {
	delay time.Duration
	fn    func(Batch)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]Op
	batch   Batch
	stopped bool

	fire sync.Mutex
}

// NewDebouncer creates a debouncer that calls fn after delay of quiet.
func NewDebouncer(delay time.Duration, fn func(Batch)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay:   delay,
		fn:      fn,
		pending: make(map[string]Op),
	}
}

// Add records an event and restarts the quiet period.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	key := ev.Rel
	if key == "" {
		key = ev.Path
	}
	d.pending[key] |= ev.Op
	d.batch.Ops |= ev.Op
	if d.batch.First.IsZero() || ev.Timestamp.Before(d.batch.First) {
		d.batch.First = ev.Timestamp
	}
	if ev.Timestamp.After(d.batch.Last) {
		d.batch.Last = ev.Timestamp
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flush)
		return
	}
	d.timer.Reset(d.delay)
}

// Flush delivers any pending batch immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.flush()
}

func (d *Debouncer) flush() {
	d.fire.Lock()
	defer d.fire.Unlock()

	d.mu.Lock()
	if len(d.pending) == 0 || d.stopped {
		d.mu.Unlock()
		return
	}
	batch := d.batch
	batch.Paths = make([]string, 0, len(d.pending))
	for p := range d.pending {
		batch.Paths = append(batch.Paths, p)
	}
	slices.Sort(batch.Paths)
	d.pending = make(map[string]Op)
	d.batch = Batch{}
	d.mu.Unlock()

	d.fn(batch)
}

// Pending returns the number of distinct paths waiting to be delivered.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards pending events. Later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	clear(d.pending)
}

// Run feeds w's events into a debouncer until ctx is done or w closes.
// Watcher errors go to onError, which may be nil.
func Run(ctx context.Context, w Watcher, delay time.Duration, fn func(Batch), onError func(error)) {
	d := NewDebouncer(delay, fn)
	defer d.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			d.Add(ev)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
