package output

// DefaultMaxEntries is the retention bound used when none is configured.
const DefaultMaxEntries = 5000

// Buffer is a bounded FIFO of records backed by a ring.
// It is not safe for concurrent use; the Classifier serializes access.
type Buffer struct {
	records  []Record
	capacity int
	head     int
	count    int

	errors   int
	warnings int
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultMaxEntries
	}
	return &Buffer{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

// Add appends r, evicting the oldest record when full.
// It returns the number of records evicted.
func (b *Buffer) Add(r Record) int {
	evicted := 0
	if b.count == b.capacity {
		b.uncount(b.records[b.head])
		b.records[b.head] = Record{}
		b.head = (b.head + 1) % b.capacity
		b.count--
		evicted = 1
	}

	idx := (b.head + b.count) % b.capacity
	b.records[idx] = r
	b.count++
	b.tally(r)
	return evicted
}

func (b *Buffer) tally(r Record) {
	switch r.Level {
	case LevelError:
		b.errors++
	case LevelWarning:
		b.warnings++
	}
}

func (b *Buffer) uncount(r Record) {
	switch r.Level {
	case LevelError:
		b.errors--
	case LevelWarning:
		b.warnings--
	}
}

// Records returns a copy of all records, oldest first.
func (b *Buffer) Records() []Record {
	result := make([]Record, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.records[(b.head+i)%b.capacity]
	}
	return result
}

// Each calls fn for each record, oldest first, until fn returns false.
func (b *Buffer) Each(fn func(Record) bool) {
	for i := 0; i < b.count; i++ {
		if !fn(b.records[(b.head+i)%b.capacity]) {
			return
		}
	}
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	return b.count
}

// Cap returns the retention bound.
func (b *Buffer) Cap() int {
	return b.capacity
}

// ErrorCount returns the number of buffered Error records.
func (b *Buffer) ErrorCount() int {
	return b.errors
}

// WarningCount returns the number of buffered Warning records.
func (b *Buffer) WarningCount() int {
	return b.warnings
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	clear(b.records)
	b.head = 0
	b.count = 0
	b.errors = 0
	b.warnings = 0
}
