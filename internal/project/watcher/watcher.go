// Package watcher detects source edits under a project directory.
//
// FSNotifyWatcher watches a directory tree and emits events for files that
// match the configured doublestar patterns. A Debouncer collapses a burst of
// saves into a single Batch, which devpilot turns into one hot reload.
package watcher

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrWatchLimit      = errors.New("maximum watch limit reached")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event represents a change to a matched file.
type Event struct {
	// Path is the absolute path of the affected file.
	Path string

	// Rel is Path relative to the watch root, slash separated.
	Rel string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Stats provides watcher status information.
type Stats struct {
	WatchedPaths int
	TotalEvents  int64
	Errors       int64
	LastError    error
	StartTime    time.Time
}

// Watcher monitors file system changes.
type Watcher interface {
	// WatchRecursive watches a directory and all non-ignored subdirectories.
	WatchRecursive(path string) error

	// Events returns the channel of matched file events.
	// The channel is closed when the watcher is closed.
	Events() <-chan Event

	// Errors returns the channel of watcher errors.
	// The channel is closed when the watcher is closed.
	Errors() <-chan error

	// Close stops the watcher and releases resources.
	Close() error
}

// Config holds watcher configuration options.
type Config struct {
	// Patterns select the files that produce events. Empty matches all.
	Patterns []string

	// Ignore excludes files and whole directories.
	Ignore []string

	// BufferSize is the size of the event and error channels.
	// Default: 100
	BufferSize int

	// MaxWatches is the maximum number of directories to watch.
	// 0 means unlimited.
	MaxWatches int

	// Ops selects which operations are reported. Chmod is excluded by
	// default since editors touch modes without changing content.
	Ops Op

	Logger zerolog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Ops:        OpCreate | OpWrite | OpRemove | OpRename,
		Logger:     zerolog.Nop(),
	}
}

// WatcherOption configures a watcher.
type WatcherOption func(*Config)

// WithPatterns sets the include patterns.
func WithPatterns(patterns ...string) WatcherOption {
	return func(c *Config) {
		c.Patterns = patterns
	}
}

// WithIgnore sets the ignore patterns.
func WithIgnore(patterns ...string) WatcherOption {
	return func(c *Config) {
		c.Ignore = patterns
	}
}

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) WatcherOption {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithMaxWatches sets the maximum number of watches.
func WithMaxWatches(max int) WatcherOption {
	return func(c *Config) {
		c.MaxWatches = max
	}
}

// WithOps sets which operations are reported.
func WithOps(ops Op) WatcherOption {
	return func(c *Config) {
		c.Ops = ops
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) WatcherOption {
	return func(c *Config) {
		c.Logger = l
	}
}
