package output

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity assigned to a log record.
type Level int

const (
	// LevelDebug is diagnostic output.
	LevelDebug Level = iota
	// LevelInfo is ordinary output and the default classification.
	LevelInfo
	// LevelWarning is a warning.
	LevelWarning
	// LevelError is an error.
	LevelError

	// LevelAll is only meaningful in a Filter, where it matches every level.
	LevelAll Level = -1
)

// Levels lists the assignable levels in ascending severity.
var Levels = []Level{LevelDebug, LevelInfo, LevelWarning, LevelError}

// String returns the upper-case level name used in exports.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelAll:
		return "ALL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel parses a level name. It accepts the exported names plus the
// common short forms (warn, err, dbg).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "dbg", "d":
		return LevelDebug, nil
	case "info", "i", "":
		return LevelInfo, nil
	case "warning", "warn", "w":
		return LevelWarning, nil
	case "error", "err", "e":
		return LevelError, nil
	case "all", "*":
		return LevelAll, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Source tells where a record's text came from.
type Source int

const (
	// SourceStdout is the child's standard output.
	SourceStdout Source = iota
	// SourceStderr is the child's standard error.
	SourceStderr
	// SourceSystem marks lines synthesized by devpilot itself.
	SourceSystem
)

// String returns a human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceStdout:
		return "stdout"
	case SourceStderr:
		return "stderr"
	case SourceSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Record is one classified log line. Records are immutable once created.
type Record struct {
	// Seq is the insertion sequence number, starting at 1 and never reused.
	Seq uint64

	Time    time.Time
	Level   Level
	Message string

	// Raw is the line exactly as received, before cleaning.
	Raw    string
	Source Source
}

// ChangeKind identifies a buffer notification.
type ChangeKind int

const (
	// ChangeAppended means Record was added to the buffer.
	ChangeAppended ChangeKind = iota
	// ChangeCleared means the buffer was emptied.
	ChangeCleared
)

// Change is delivered to classifier subscribers.
type Change struct {
	Kind   ChangeKind
	Record Record

	// Evicted is the number of records dropped to make room for Record.
	Evicted int
}
