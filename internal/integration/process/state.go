package process

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a Supervisor.
type State int

const (
	// StateIdle means no process is active.
	StateIdle State = iota
	// StateStarting means the executable is being resolved and spawned.
	StateStarting
	// StateRunning means the child process is alive and its output is streaming.
	StateRunning
	// StateStopping means Stop is tearing the run down.
	StateStopping
	// StateFailed means the last run could not start or exited abnormally.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Active reports whether a new Start must be rejected in this state.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// FailureKind classifies why a run ended in StateFailed.
type FailureKind int

const (
	// FailureNone means there is no failure.
	FailureNone FailureKind = iota
	// FailureCommandNotFound means the executable could not be resolved.
	FailureCommandNotFound
	// FailureSpawn means the executable was found but could not be started.
	FailureSpawn
	// FailureExit means the process exited with a nonzero code or a signal.
	FailureExit
)

// String returns a human-readable failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureCommandNotFound:
		return "command-not-found"
	case FailureSpawn:
		return "spawn-failed"
	case FailureExit:
		return "exited-abnormally"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Failure describes the reason carried by StateFailed.
type Failure struct {
	Kind     FailureKind
	Detail   string
	ExitCode int

	// Err is the underlying error, if any.
	Err error
}

func (f Failure) String() string {
	if f.Kind == FailureExit {
		return fmt.Sprintf("%s (code %d): %s", f.Kind, f.ExitCode, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// StateChange is delivered to subscribers on every transition.
type StateChange struct {
	From State
	To   State

	// Failure is set when To is StateFailed.
	Failure *Failure

	// RunID identifies the run the transition belongs to.
	RunID string
	Time  time.Time
}
