package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates an action that needs a running session.
	ErrNotRunning = errors.New("application not running")

	// ErrInitialization indicates a component failed to initialize.
	ErrInitialization = errors.New("initialization failed")
)

// ComponentError represents an error from a specific component.
type ComponentError struct {
	Component string // e.g. "watcher", "rules", "supervisor"
	Action    string
	Err       error
}

func (e *ComponentError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *ComponentError) Unwrap() error {
	return e.Err
}

// ExitError reports that the supervised tool ended unsuccessfully. The CLI
// uses Code as its own exit status.
type ExitError struct {
	Profile string
	Code    int
	Detail  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %s", e.Profile, e.Code, e.Detail)
}
