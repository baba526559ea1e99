package output

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/devpilot/internal/event"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Option configures a Classifier.
type Option func(*Classifier)

// WithMaxEntries sets the retention bound.
func WithMaxEntries(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithRules inserts rules after the structured formats and before the
// keyword fallback.
func WithRules(rules ...Rule) Option {
	return func(c *Classifier) {
		c.custom = append(c.custom, rules...)
	}
}

// WithToolPrefixes replaces the tool prefixes unwrapped as Info.
// An empty list keeps DefaultToolPrefixes.
func WithToolPrefixes(prefixes ...string) Option {
	return func(c *Classifier) {
		if len(prefixes) > 0 {
			c.prefixes = slices.Clone(prefixes)
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) {
		c.logger = l
	}
}

// Classifier turns raw output chunks into leveled records held in a
// bounded buffer. Ingest may be called from several goroutines; the buffer
// append is the serialization point.
type Classifier struct {
	mu     sync.RWMutex
	buffer *Buffer
	seq    uint64

	maxEntries int
	prefixes   []string
	custom     []Rule
	rules      []Rule

	now    func() time.Time
	logger zerolog.Logger
	feed   *event.Broadcaster[Change]
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		maxEntries: DefaultMaxEntries,
		prefixes:   DefaultToolPrefixes,
		now:        time.Now,
		logger:     zerolog.Nop(),
		feed:       event.NewBroadcaster[Change](),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.buffer = NewBuffer(c.maxEntries)
	c.rules = append(StructuredRules(c.prefixes...), c.custom...)
	c.rules = append(c.rules, KeywordRule{})
	c.logger = c.logger.With().Str("component", "classifier").Logger()
	return c
}

// Classify assigns a level and cleaned message to one line. It never fails;
// a rule that panics is skipped.
func (c *Classifier) Classify(line string) Classification {
	clean := ansiEscape.ReplaceAllString(line, "")
	for _, rule := range c.rules {
		if cl, ok := c.tryRule(rule, clean); ok {
			return cl
		}
	}
	return Classification{Level: LevelInfo, Message: strings.TrimSpace(clean)}
}

func (c *Classifier) tryRule(rule Rule, line string) (cl Classification, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Str("rule", rule.Name()).Interface("panic", r).Msg("classification rule panicked")
			ok = false
		}
	}()
	cl, ok = rule.Classify(line)
	if ok && (cl.Level < LevelDebug || cl.Level > LevelError) {
		cl.Level = LevelInfo
	}
	return cl, ok
}

// Ingest splits chunk into lines, drops blank ones and appends the rest.
// A partial line at a chunk boundary becomes its own record.
func (c *Classifier) Ingest(chunk string, isErr bool) {
	src := SourceStdout
	if isErr {
		src = SourceStderr
	}
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cl := c.Classify(line)
		c.append(cl.Level, cl.Message, line, src)
	}
}

// System appends a synthetic line describing something devpilot did.
// failure selects Error instead of Info.
func (c *Classifier) System(message string, failure bool) {
	level := LevelInfo
	if failure {
		level = LevelError
	}
	c.Note(level, message)
}

// Note appends a synthetic record with an explicit level.
func (c *Classifier) Note(level Level, message string) {
	if level < LevelDebug || level > LevelError {
		level = LevelInfo
	}
	c.append(level, message, message, SourceSystem)
}

func (c *Classifier) append(level Level, message, raw string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	rec := Record{
		Seq:     c.seq,
		Time:    c.now(),
		Level:   level,
		Message: message,
		Raw:     raw,
		Source:  src,
	}
	evicted := c.buffer.Add(rec)
	c.feed.Publish(Change{Kind: ChangeAppended, Record: rec, Evicted: evicted})
}

// Entries returns a snapshot of every buffered record, oldest first.
func (c *Classifier) Entries() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.Records()
}

// FilteredEntries returns the records matching f, oldest first.
func (c *Classifier) FilteredEntries(f Filter) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, 0, c.buffer.Len())
	c.buffer.Each(func(r Record) bool {
		if f.Match(r) {
			out = append(out, r)
		}
		return true
	})
	return out
}

// Len returns the number of buffered records.
func (c *Classifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.Len()
}

// MaxEntries returns the retention bound.
func (c *Classifier) MaxEntries() int {
	return c.maxEntries
}

// ErrorCount counts Error records over the whole buffer, ignoring any filter.
func (c *Classifier) ErrorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.ErrorCount()
}

// WarningCount counts Warning records over the whole buffer, ignoring any filter.
func (c *Classifier) WarningCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.WarningCount()
}

// Clear empties the buffer. The sequence counter keeps counting so numbers
// cached by consumers are never reused.
func (c *Classifier) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.Clear()
	c.feed.Publish(Change{Kind: ChangeCleared})
}

// Export writes the full buffer, oldest first, to path atomically.
func (c *Classifier) Export(path string) error {
	records := c.Entries()
	if err := WriteFileAtomic(path, records); err != nil {
		return fmt.Errorf("export log: %w", err)
	}
	c.logger.Debug().Str("path", path).Int("records", len(records)).Msg("exported log")
	return nil
}

// Subscribe returns a channel of buffer changes. Slow subscribers lose
// their oldest pending changes rather than blocking ingestion.
func (c *Classifier) Subscribe(size int) (<-chan Change, func(), error) {
	return c.feed.Subscribe(size)
}

// Close ends every subscription.
func (c *Classifier) Close() {
	c.feed.Close()
}
