package process

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the process package.
var (
	// ErrCommandNotFound is returned when a tool cannot be resolved to an executable.
	ErrCommandNotFound = errors.New("command not found")

	// ErrProcessNotRunning is returned when an operation requires a running process.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrAlreadyRunning is returned when Start is called while a run is active.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrExecutionFailed is returned for spawn failures, pipe errors and abnormal exits.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrUnsupportedOperation is returned when the active tool does not support an operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrProcessAlreadyStarted is returned when start is called twice on a Process.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrInvalidRunSpec is returned when a RunSpec is missing required fields.
	ErrInvalidRunSpec = errors.New("invalid run spec")
)

// CommandNotFoundError reports a tool that could not be resolved.
// It keeps the tool name so callers can render install guidance.
type CommandNotFoundError struct {
	// Tool is the logical tool name that was requested.
	Tool string

	// Searched lists the candidate paths that were probed.
	Searched []string
}

func (e *CommandNotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("command not found: %s", e.Tool)
	}
	return fmt.Sprintf("command not found: %s (searched %s and PATH)", e.Tool, strings.Join(e.Searched, ", "))
}

// Unwrap returns ErrCommandNotFound.
func (e *CommandNotFoundError) Unwrap() error {
	return ErrCommandNotFound
}

// ExecutionError wraps a failure that happened while running a tool.
type ExecutionError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ExecutionError) Error() string {
	msg := "execution failed: " + e.Op
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying errors so both ErrExecutionFailed and the
// cause match errors.Is.
func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecutionFailed}
	}
	return []error{ErrExecutionFailed, e.Err}
}

// UnsupportedOperationError is returned when a tool does not support an operation.
type UnsupportedOperationError struct {
	Op   string
	Tool string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation: %s is not supported by %s", e.Op, e.Tool)
}

// Unwrap returns ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}
