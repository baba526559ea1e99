package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Process is one spawned child with its three pipes.
//
// The parent keeps the stdin write end and the stdout/stderr read ends;
// the child's ends are closed as soon as the process has started so that
// readers observe EOF when the child exits. Process is safe for concurrent use.
type Process struct {
	// ID is the run identifier.
	ID string

	// Name is a human-readable name for the process.
	Name string

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Stdin is the write end of the child's stdin pipe.
	Stdin *os.File

	// Stdout and Stderr are the read ends of the child's output pipes.
	Stdout *os.File
	Stderr *os.File

	// Started is the time the process was started.
	Started time.Time

	// childEnds are the pipe ends handed to the child.
	childEnds []*os.File

	done     chan struct{}
	started  atomic.Bool
	exited   atomic.Bool
	signaled atomic.Bool
	exitCode atomic.Int32
	ended    atomic.Int64

	mu      sync.RWMutex
	exitErr error

	waitOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   id,
		Name: name,
		Cmd:  cmd,
		done: make(chan struct{}),
	}
	p.exitCode.Store(-1) // -1 until exit
	return p
}

// openPipes creates the stdin, stdout and stderr pipes and attaches the
// child ends to Cmd. On error every pipe created so far is closed.
func (p *Process) openPipes() error {
	var created []*os.File
	fail := func(what string, err error) error {
		for _, f := range created {
			_ = f.Close()
		}
		return fmt.Errorf("create %s pipe: %w", what, err)
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return fail("stdin", err)
	}
	created = append(created, inR, inW)

	outR, outW, err := os.Pipe()
	if err != nil {
		return fail("stdout", err)
	}
	created = append(created, outR, outW)

	errR, errW, err := os.Pipe()
	if err != nil {
		return fail("stderr", err)
	}

	p.Cmd.Stdin = inR
	p.Cmd.Stdout = outW
	p.Cmd.Stderr = errW
	p.Stdin = inW
	p.Stdout = outR
	p.Stderr = errR
	p.childEnds = []*os.File{inR, outW, errW}
	return nil
}

func (p *Process) closeChildEnds() {
	for _, f := range p.childEnds {
		_ = f.Close()
	}
	p.childEnds = nil
}

// start spawns the process and begins waiting for it.
func (p *Process) start() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrProcessAlreadyStarted
	}

	setProcessGroup(p.Cmd)
	err := p.Cmd.Start()
	p.closeChildEnds()
	if err != nil {
		return err
	}

	p.Started = time.Now()
	go p.waitLoop()
	return nil
}

// waitLoop is the only caller of Cmd.Wait.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.Cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		exitCode := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					p.signaled.Store(true)
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.ended.Store(time.Now().UnixNano())
		p.exited.Store(true)
		close(p.done)
	})
}

// ExitCode returns the exit code, or -1 if the process has not exited or
// was killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error from Wait, if any.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Signaled reports whether the process was terminated by a signal.
func (p *Process) Signaled() bool {
	return p.signaled.Load()
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// HasExited returns true once the process has been reaped.
func (p *Process) HasExited() bool {
	return p.exited.Load()
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal sends sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if p.Cmd.Process == nil || p.HasExited() {
		return ErrProcessNotRunning
	}
	return p.Cmd.Process.Signal(sig)
}

// killGroup is swapped out in tests.
var killGroup = killProcessGroup

// Kill force-kills the process group. The group is signalled even after the
// leader exited so that orphaned children are cleaned up; a group that no
// longer exists is not an error.
func (p *Process) Kill() error {
	if p.Cmd.Process == nil {
		return nil
	}
	err := killGroup(p.PID())
	if err == nil || p.HasExited() {
		return nil
	}
	if kerr := p.Cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		return fmt.Errorf("kill process: %w", errors.Join(err, kerr))
	}
	return nil
}

// Close closes the parent's pipe ends. Closing the read ends wakes any
// goroutine blocked reading them. Close is idempotent.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, f := range []struct {
			name string
			file *os.File
		}{{"stdin", p.Stdin}, {"stdout", p.Stdout}, {"stderr", p.Stderr}} {
			if f.file == nil {
				continue
			}
			if err := f.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, fmt.Errorf("close %s: %w", f.name, err))
			}
		}
		p.closeChildEnds()
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// Runtime returns how long the process has run, or ran if it exited.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	if ended := p.ended.Load(); ended != 0 {
		return time.Unix(0, ended).Sub(p.Started)
	}
	return time.Since(p.Started)
}
