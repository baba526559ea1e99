package console

import (
	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
)

// Model is the read side of the log the console displays.
type Model interface {
	FilteredEntries(f output.Filter) []output.Record
	ErrorCount() int
	WarningCount() int
}

// Actions are the commands the console can issue.
type Actions interface {
	HotReload() error
	HotRestart() error
	Clear()
	// Export writes the current log and returns the file written.
	Export() (string, error)
	// Quit stops the child and ends the session.
	Quit()
}

// Status is the supervisor summary shown in the status line.
type Status struct {
	Profile string
	State   process.State
	Failure *process.Failure
	PID     int
}

// filterKeys maps the number keys to level filters.
var filterKeys = map[rune]output.Level{
	'1': output.LevelAll,
	'2': output.LevelError,
	'3': output.LevelWarning,
	'4': output.LevelInfo,
	'5': output.LevelDebug,
}

// Help is the one-line key summary.
const Help = "r reload  R restart  1-5 filter  / search  c clear  e export  q quit"
