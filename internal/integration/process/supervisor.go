package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/devpilot/internal/event"
)

// Defaults for supervisor timing.
const (
	// DefaultGracePeriod is how long Stop waits after sending the quit token.
	DefaultGracePeriod = 500 * time.Millisecond

	// readerDrainTimeout bounds waiting for read loops to finish. Orphaned
	// grandchildren can hold a pipe open after the leader exits.
	readerDrainTimeout = time.Second

	// outputDrainTimeout bounds reading buffered output after a kill.
	outputDrainTimeout = 250 * time.Millisecond

	readBufferSize = 32 * 1024
)

// LogSink receives the child's output and supervisor notices.
// Implementations must be safe for concurrent use.
type LogSink interface {
	// Ingest receives a raw chunk read from stdout or stderr.
	Ingest(chunk string, isErr bool)

	// System records a line produced by the supervisor itself.
	System(message string, failure bool)
}

type discardSink struct{}

func (discardSink) Ingest(string, bool) {}
func (discardSink) System(string, bool) {}

// RunInfo is a snapshot of the current or most recent run.
type RunInfo struct {
	ID       string
	Name     string
	Path     string
	Args     []string
	PID      int
	Started  time.Time
	Runtime  time.Duration
	ExitCode int
	Exited   bool
}

// run holds everything owned by one spawned process.
type run struct {
	id      string
	spec    RunSpec
	path    string
	proc    *Process
	ctx     context.Context
	cancel  context.CancelFunc
	readers sync.WaitGroup
}

// Supervisor owns at most one interactive child process.
//
// State changes only through Start, Stop and the exit watcher, and are
// serialized by mu. Subscribers receive every transition in order through
// Subscribe. Supervisor is safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	state   State
	failure *Failure
	run     *run
	last    *run

	resolver    Resolver
	sink        LogSink
	gracePeriod time.Duration
	pathDirs    []string
	environ     func() []string
	newID       func() string
	logger      zerolog.Logger
	feed        *event.Broadcaster[StateChange]
}

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithResolver sets the executable resolver.
func WithResolver(r Resolver) SupervisorOption {
	return func(s *Supervisor) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithLogSink sets where output and notices are delivered.
func WithLogSink(sink LogSink) SupervisorOption {
	return func(s *Supervisor) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithGracePeriod sets how long Stop waits for a graceful exit.
func WithGracePeriod(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d >= 0 {
			s.gracePeriod = d
		}
	}
}

// WithPathDirs sets the directories prepended to the child's PATH.
func WithPathDirs(dirs ...string) SupervisorOption {
	return func(s *Supervisor) {
		s.pathDirs = dirs
	}
}

// WithEnviron sets the base environment source. Defaults to os.Environ.
func WithEnviron(fn func() []string) SupervisorOption {
	return func(s *Supervisor) {
		if fn != nil {
			s.environ = fn
		}
	}
}

// WithIDGenerator sets the run ID generator. Defaults to random UUIDs.
func WithIDGenerator(fn func() string) SupervisorOption {
	return func(s *Supervisor) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		state:       StateIdle,
		resolver:    NewPathResolver(),
		sink:        discardSink{},
		gracePeriod: DefaultGracePeriod,
		pathDirs:    DefaultToolDirs(),
		environ:     os.Environ,
		newID:       uuid.NewString,
		logger:      zerolog.Nop(),
		feed:        event.NewBroadcaster[StateChange](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "supervisor").Logger()
	return s
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the reason for StateFailed, or nil.
func (s *Supervisor) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return nil
	}
	f := *s.failure
	return &f
}

// Spec returns the run spec of the active run.
func (s *Supervisor) Spec() (RunSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return RunSpec{}, false
	}
	return s.run.spec.Clone(), true
}

// Info returns a snapshot of the active run, or the most recent one.
func (s *Supervisor) Info() (RunInfo, bool) {
	s.mu.Lock()
	r := s.run
	if r == nil {
		r = s.last
	}
	s.mu.Unlock()
	if r == nil {
		return RunInfo{}, false
	}
	return RunInfo{
		ID:       r.id,
		Name:     r.spec.DisplayName(),
		Path:     r.path,
		Args:     append([]string(nil), r.spec.Args...),
		PID:      r.proc.PID(),
		Started:  r.proc.Started,
		Runtime:  r.proc.Runtime(),
		ExitCode: r.proc.ExitCode(),
		Exited:   r.proc.HasExited(),
	}, true
}

// Subscribe returns a channel of state transitions and a cancel function.
// A subscriber that falls behind loses its oldest pending transitions.
func (s *Supervisor) Subscribe(size int) (<-chan StateChange, func(), error) {
	return s.feed.Subscribe(size)
}

// setState records a transition and notifies subscribers. Caller holds mu.
func (s *Supervisor) setState(to State, f *Failure, runID string) {
	from := s.state
	s.state = to
	switch to {
	case StateFailed:
		s.failure = f
	case StateStarting:
		s.failure = nil
	}

	ev := s.logger.Debug()
	if to == StateFailed {
		ev = s.logger.Warn()
	}
	ev.Str("from", from.String()).Str("to", to.String()).Str("run_id", runID).Msg("state changed")

	change := StateChange{From: from, To: to, RunID: runID, Time: time.Now()}
	if f != nil {
		fc := *f
		change.Failure = &fc
	}
	s.feed.Publish(change)
}

// Start resolves and spawns spec.Tool. It fails with ErrAlreadyRunning unless
// the supervisor is Idle or Failed. Resolution and spawn failures leave the
// supervisor Failed and are also returned.
func (s *Supervisor) Start(spec RunSpec) error {
	spec = spec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Active() {
		return ErrAlreadyRunning
	}

	id := s.newID()
	s.setState(StateStarting, nil, id)
	logger := s.logger.With().Str("run_id", id).Str("tool", spec.Tool).Logger()

	if err := spec.Validate(); err != nil {
		return s.failSpawn(id, "validate", err)
	}

	path, err := s.resolver.Resolve(spec.Tool)
	if err != nil {
		var nf *CommandNotFoundError
		if !errors.As(err, &nf) {
			nf = &CommandNotFoundError{Tool: spec.Tool}
		}
		s.setState(StateFailed, &Failure{Kind: FailureCommandNotFound, Detail: nf.Error(), ExitCode: -1, Err: nf}, id)
		s.sink.System(nf.Error(), true)
		logger.Warn().Err(nf).Msg("executable not found")
		return nf
	}

	env, err := BuildEnv(s.environ(), s.pathDirs, spec.Dir, spec.EnvFiles, spec.Env)
	if err != nil {
		return s.failSpawn(id, "environment", err)
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = env

	proc := newProcess(id, spec.DisplayName(), cmd)
	if err := proc.openPipes(); err != nil {
		return s.failSpawn(id, "pipes", err)
	}
	if err := proc.start(); err != nil {
		_ = proc.Close()
		return s.failSpawn(id, "spawn "+path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     id,
		spec:   spec,
		path:   path,
		proc:   proc,
		ctx:    ctx,
		cancel: cancel,
	}
	s.run = r
	s.last = r

	r.readers.Add(2)
	go s.readLoop(r, proc.Stdout, false)
	go s.readLoop(r, proc.Stderr, true)
	go s.watchExit(r)

	s.setState(StateRunning, nil, id)

	cmdline := shellescape.QuoteCommand(append([]string{path}, spec.Args...))
	logger.Info().Int("pid", proc.PID()).Str("cmd", cmdline).Str("dir", spec.Dir).Msg("process started")
	s.sink.System("Started "+cmdline, false)
	return nil
}

// failSpawn moves to Failed for a spawn-stage error. Caller holds mu.
func (s *Supervisor) failSpawn(id, op string, err error) error {
	execErr := &ExecutionError{Op: op, Err: err}
	s.setState(StateFailed, &Failure{Kind: FailureSpawn, Detail: execErr.Error(), ExitCode: -1, Err: execErr}, id)
	s.sink.System(execErr.Error(), true)
	s.logger.Warn().Err(err).Str("run_id", id).Str("op", op).Msg("start failed")
	return execErr
}

// readLoop forwards chunks from one pipe until EOF, pipe closure or cancellation.
func (s *Supervisor) readLoop(r *run, f *os.File, isErr bool) {
	defer r.readers.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if r.ctx.Err() != nil {
				return
			}
			s.sink.Ingest(string(buf[:n]), isErr)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && r.ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("run_id", r.id).Bool("stderr", isErr).Msg("read failed")
				stream := "stdout"
				if isErr {
					stream = "stderr"
				}
				execErr := &ExecutionError{Op: "read " + stream, Err: err}
				s.sink.System(execErr.Error(), true)
			}
			return
		}
	}
}

// watchExit reacts to the child exiting on its own. During Stop it does
// nothing: Stop owns the transition to Idle.
func (s *Supervisor) watchExit(r *run) {
	<-r.proc.Done()

	// Let trailing output land before the exit notice.
	waitGroupTimeout(&r.readers, readerDrainTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != r || s.state != StateRunning {
		return
	}

	code := r.proc.ExitCode()
	s.teardown(r)
	s.run = nil

	name := r.spec.DisplayName()
	if code == 0 && !r.proc.Signaled() {
		s.logger.Info().Str("run_id", r.id).Dur("runtime", r.proc.Runtime()).Msg("process exited")
		s.sink.System(fmt.Sprintf("%s exited", name), false)
		s.setState(StateIdle, nil, r.id)
		return
	}

	detail := fmt.Sprintf("%s exited with code %d", name, code)
	if r.proc.Signaled() {
		detail = fmt.Sprintf("%s was killed by a signal", name)
	}
	s.sink.System(detail, true)
	s.setState(StateFailed, &Failure{
		Kind:     FailureExit,
		Detail:   detail,
		ExitCode: code,
		Err:      &ExecutionError{Op: "run", Detail: detail, Err: r.proc.ExitError()},
	}, r.id)
}

// teardown kills the group, cancels the readers and closes every pipe.
func (s *Supervisor) teardown(r *run) {
	s.kill(r)
	s.release(r)
}

func (s *Supervisor) kill(r *run) {
	if err := r.proc.Kill(); err != nil {
		s.logger.Warn().Err(err).Str("run_id", r.id).Msg("kill failed")
		s.sink.System("Kill failed: "+err.Error(), true)
	}
}

// release cancels the read loops and closes the pipes, waking any reader
// still blocked on a pipe held open by an orphaned child.
func (s *Supervisor) release(r *run) {
	r.cancel()
	if err := r.proc.Close(); err != nil {
		s.logger.Debug().Err(err).Str("run_id", r.id).Msg("close pipes")
	}
}

// Stop shuts the active run down and always ends Idle. It is a no-op unless
// the supervisor is Running, so a concurrent second Stop returns at once.
// A Failed supervisor is left Failed so the failure stays visible; the next
// Start re-arms it.
// The quit token is tried first when the run spec has one; the process is then
// force-killed regardless.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state != StateRunning || s.run == nil {
		s.mu.Unlock()
		return
	}
	r := s.run
	s.setState(StateStopping, nil, r.id)
	s.mu.Unlock()

	if token := r.spec.QuitToken; token != "" {
		s.quit(r, token)
	}

	s.kill(r)
	select {
	case <-r.proc.Done():
	case <-time.After(readerDrainTimeout):
		s.logger.Warn().Str("run_id", r.id).Msg("process not reaped after kill")
	}

	// Output already written by the child is read before the pipes close.
	waitGroupTimeout(&r.readers, outputDrainTimeout)
	s.release(r)
	if !waitGroupTimeout(&r.readers, readerDrainTimeout) {
		s.logger.Warn().Str("run_id", r.id).Msg("read loops did not finish")
	}

	s.mu.Lock()
	s.run = nil
	s.setState(StateIdle, nil, r.id)
	s.mu.Unlock()

	s.logger.Info().Str("run_id", r.id).Dur("runtime", r.proc.Runtime()).Msg("process stopped")
	s.sink.System(r.spec.DisplayName()+" stopped", false)
}

// quit writes the quit token and waits out the grace period for the child
// to exit. The whole step is bounded by the grace period: a write blocked
// on a full stdin pipe is abandoned and later unblocked when release
// closes stdin.
func (s *Supervisor) quit(r *run, token string) {
	grace := time.NewTimer(s.gracePeriod)
	defer grace.Stop()

	written := make(chan error, 1)
	go func() { written <- writeLine(r.proc.Stdin, token) }()

	select {
	case err := <-written:
		if err != nil {
			s.logger.Debug().Err(err).Str("run_id", r.id).Msg("quit token not delivered")
			return
		}
	case <-r.proc.Done():
		return
	case <-grace.C:
		s.logger.Debug().Str("run_id", r.id).Msg("quit token write blocked; killing")
		return
	}

	select {
	case <-r.proc.Done():
	case <-grace.C:
	}
}

// SendInput writes text plus a newline to the child's stdin. It fails with
// ErrProcessNotRunning unless Running. A write failure is returned but does
// not change state; the exit watcher decides that.
func (s *Supervisor) SendInput(text string) error {
	s.mu.Lock()
	if s.state != StateRunning || s.run == nil {
		s.mu.Unlock()
		return ErrProcessNotRunning
	}
	r := s.run
	s.mu.Unlock()

	if err := writeLine(r.proc.Stdin, text); err != nil {
		execErr := &ExecutionError{Op: "write stdin", Err: err}
		s.sink.System(execErr.Error(), true)
		return execErr
	}
	return nil
}

// HotReload sends the hot reload token to a tool that supports it.
func (s *Supervisor) HotReload() error {
	return s.sendToken("hot reload", TokenHotReload, func(spec RunSpec) bool { return spec.HotReload }, "Hot reload triggered")
}

// HotRestart sends the hot restart token to a tool that supports it.
func (s *Supervisor) HotRestart() error {
	return s.sendToken("hot restart", TokenHotRestart, func(spec RunSpec) bool { return spec.HotRestart }, "Hot restart triggered")
}

func (s *Supervisor) sendToken(op, token string, supported func(RunSpec) bool, notice string) error {
	s.mu.Lock()
	if s.state != StateRunning || s.run == nil {
		s.mu.Unlock()
		return ErrProcessNotRunning
	}
	spec := s.run.spec
	s.mu.Unlock()

	if !supported(spec) {
		return &UnsupportedOperationError{Op: op, Tool: spec.DisplayName()}
	}
	if err := s.SendInput(token); err != nil {
		return err
	}
	s.sink.System(notice, false)
	return nil
}

// Close stops any active run and ends every subscription.
func (s *Supervisor) Close() {
	s.Stop()
	s.feed.Close()
}

func writeLine(f *os.File, text string) error {
	if f == nil {
		return ErrProcessNotRunning
	}
	_, err := f.WriteString(text + "\n")
	return err
}

// waitGroupTimeout waits for wg up to d and reports whether it finished.
func waitGroupTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
