package process

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// memorySink collects everything the supervisor emits.
type memorySink struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder
	system []string
	fails  []string
}

func (m *memorySink) Ingest(chunk string, isErr bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isErr {
		m.stderr.WriteString(chunk)
	} else {
		m.stdout.WriteString(chunk)
	}
}

func (m *memorySink) System(message string, failure bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = append(m.system, message)
	if failure {
		m.fails = append(m.fails, message)
	}
}

func (m *memorySink) Stdout() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stdout.String()
}

func (m *memorySink) Stderr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stderr.String()
}

func (m *memorySink) Systems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.system...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func newShellSupervisor(t *testing.T, opts ...SupervisorOption) (*Supervisor, *memorySink) {
	t.Helper()
	requireShell(t)
	sink := &memorySink{}
	base := []SupervisorOption{
		WithResolver(ResolverFunc(func(tool string) (string, error) {
			if tool == "sh" {
				return "/bin/sh", nil
			}
			return "", &CommandNotFoundError{Tool: tool}
		})),
		WithLogSink(sink),
		WithPathDirs(),
	}
	s := NewSupervisor(append(base, opts...)...)
	t.Cleanup(s.Close)
	return s, sink
}

func shellSpec(script string) RunSpec {
	return RunSpec{Name: "test", Tool: "sh", Args: []string{"-c", script}}
}

const echoLoop = `echo ready; while read line; do echo "got $line"; done`

func TestSupervisor_InitialState(t *testing.T) {
	s := NewSupervisor()
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}
	if s.Failure() != nil {
		t.Error("expected no failure")
	}
	if _, ok := s.Info(); ok {
		t.Error("expected no run info before Start")
	}
}

func TestSupervisor_StartSendStop(t *testing.T) {
	s, sink := newShellSupervisor(t)

	changes, cancel, err := s.Subscribe(16)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := s.Start(shellSpec(echoLoop)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("expected running, got %v", s.State())
	}
	waitFor(t, "ready", func() bool { return strings.Contains(sink.Stdout(), "ready") })

	if err := s.SendInput("hello"); err != nil {
		t.Fatalf("SendInput failed: %v", err)
	}
	waitFor(t, "echo", func() bool { return strings.Contains(sink.Stdout(), "got hello") })

	s.Stop()
	if s.State() != StateIdle {
		t.Fatalf("expected idle after Stop, got %v", s.State())
	}

	want := []State{StateStarting, StateRunning, StateStopping, StateIdle}
	for i, w := range want {
		select {
		case c := <-changes:
			if c.To != w {
				t.Errorf("transition %d: got %v, want %v", i, c.To, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for transition %d", i)
		}
	}

	info, ok := s.Info()
	if !ok || !info.Exited {
		t.Errorf("expected exited run info, got %+v", info)
	}
}

func TestSupervisor_GracefulQuit(t *testing.T) {
	s, sink := newShellSupervisor(t, WithGracePeriod(2*time.Second))

	spec := shellSpec(`echo ready; while read line; do if [ "$line" = "q" ]; then echo bye; exit 0; fi; done`)
	spec.QuitToken = "q"
	if err := s.Start(spec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready", func() bool { return strings.Contains(sink.Stdout(), "ready") })

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Errorf("graceful stop took %v; expected early return on exit", elapsed)
	}
	if !strings.Contains(sink.Stdout(), "bye") {
		t.Errorf("expected child to see quit token, stdout=%q", sink.Stdout())
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}
}

func TestSupervisor_AlreadyRunning(t *testing.T) {
	s, _ := newShellSupervisor(t)
	if err := s.Start(shellSpec(echoLoop)); err != nil {
		t.Fatal(err)
	}
	info, _ := s.Info()

	if err := s.Start(shellSpec(echoLoop)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	again, _ := s.Info()
	if again.ID != info.ID || again.PID != info.PID {
		t.Error("second Start must not replace the running process")
	}
	if s.State() != StateRunning {
		t.Errorf("expected still running, got %v", s.State())
	}
}

func TestSupervisor_NotRunningErrors(t *testing.T) {
	s := NewSupervisor()
	if err := s.SendInput("x"); !errors.Is(err, ErrProcessNotRunning) {
		t.Errorf("SendInput: expected ErrProcessNotRunning, got %v", err)
	}
	if err := s.HotReload(); !errors.Is(err, ErrProcessNotRunning) {
		t.Errorf("HotReload: expected ErrProcessNotRunning, got %v", err)
	}
	if err := s.HotRestart(); !errors.Is(err, ErrProcessNotRunning) {
		t.Errorf("HotRestart: expected ErrProcessNotRunning, got %v", err)
	}
}

func TestSupervisor_StopIdle(t *testing.T) {
	s := NewSupervisor()
	changes, cancel, _ := s.Subscribe(4)
	defer cancel()

	s.Stop()
	s.Stop()

	if s.State() != StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}
	select {
	case c := <-changes:
		t.Errorf("unexpected transition %v -> %v", c.From, c.To)
	default:
	}
}

func TestSupervisor_ConcurrentStopTearsDownOnce(t *testing.T) {
	s, sink := newShellSupervisor(t)
	changes, cancel, _ := s.Subscribe(16)
	defer cancel()

	if err := s.Start(shellSpec(echoLoop)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()

	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %v", s.State())
	}

	stopping := 0
	for len(changes) > 0 {
		if c := <-changes; c.To == StateStopping {
			stopping++
		}
	}
	if stopping != 1 {
		t.Errorf("expected exactly one teardown, saw %d Stopping transitions", stopping)
	}

	stopped := 0
	for _, m := range sink.Systems() {
		if strings.HasSuffix(m, "stopped") {
			stopped++
		}
	}
	if stopped != 1 {
		t.Errorf("expected one stopped notice, got %d", stopped)
	}
}

func TestSupervisor_HotReload(t *testing.T) {
	s, sink := newShellSupervisor(t)

	spec := shellSpec(echoLoop)
	spec.HotReload = true
	if err := s.Start(spec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready", func() bool { return strings.Contains(sink.Stdout(), "ready") })

	if err := s.HotReload(); err != nil {
		t.Fatalf("HotReload failed: %v", err)
	}
	waitFor(t, "reload token", func() bool { return strings.Contains(sink.Stdout(), "got r\n") })

	err := s.HotRestart()
	var unsupported *UnsupportedOperationError
	if !errors.As(err, &unsupported) || !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
	if unsupported.Tool != "test" {
		t.Errorf("expected tool name in error, got %q", unsupported.Tool)
	}

	found := false
	for _, m := range sink.Systems() {
		if m == "Hot reload triggered" {
			found = true
		}
		if m == "Hot restart triggered" {
			t.Error("unsupported restart must not emit a notice")
		}
	}
	if !found {
		t.Error("expected hot reload notice")
	}
}

func TestSupervisor_CommandNotFound(t *testing.T) {
	s, sink := newShellSupervisor(t)

	err := s.Start(RunSpec{Tool: "flutter"})
	var nf *CommandNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected CommandNotFoundError, got %v", err)
	}
	if nf.Tool != "flutter" || !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("unexpected error %v", err)
	}

	if s.State() != StateFailed {
		t.Fatalf("expected failed, got %v", s.State())
	}
	f := s.Failure()
	if f == nil || f.Kind != FailureCommandNotFound {
		t.Errorf("expected command-not-found failure, got %+v", f)
	}
	if _, ok := s.Info(); ok {
		t.Error("no process should have been spawned")
	}
	if len(sink.fails) != 1 {
		t.Errorf("expected one failure notice, got %v", sink.fails)
	}
}

func TestSupervisor_AbnormalExit(t *testing.T) {
	s, sink := newShellSupervisor(t)
	changes, cancel, _ := s.Subscribe(16)
	defer cancel()

	if err := s.Start(shellSpec(`echo boom >&2; exit 3`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failed state", func() bool { return s.State() == StateFailed })

	f := s.Failure()
	if f == nil || f.Kind != FailureExit || f.ExitCode != 3 {
		t.Fatalf("unexpected failure: %+v", f)
	}
	if !errors.Is(f.Err, ErrExecutionFailed) {
		t.Errorf("expected ExecutionFailed cause, got %v", f.Err)
	}
	if !strings.Contains(sink.Stderr(), "boom") {
		t.Errorf("expected stderr captured, got %q", sink.Stderr())
	}

	var last StateChange
	for len(changes) > 0 {
		last = <-changes
	}
	if last.To != StateFailed || last.Failure == nil || last.Failure.ExitCode != 3 {
		t.Errorf("expected failed transition with exit code, got %+v", last)
	}

	// Stop keeps the failure visible.
	s.Stop()
	if s.State() != StateFailed || s.Failure() == nil {
		t.Errorf("Stop on failed: state %v, failure %+v", s.State(), s.Failure())
	}

	// Failed re-arms on Start.
	if err := s.Start(shellSpec(echoLoop)); err != nil {
		t.Fatalf("restart from failed: %v", err)
	}
	if s.State() != StateRunning || s.Failure() != nil {
		t.Errorf("expected running with cleared failure, got %v %+v", s.State(), s.Failure())
	}
}

func TestSupervisor_CleanExit(t *testing.T) {
	s, sink := newShellSupervisor(t)
	if err := s.Start(shellSpec(`echo done`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "idle", func() bool { return s.State() == StateIdle })
	if !strings.Contains(sink.Stdout(), "done") {
		t.Errorf("expected output before exit, got %q", sink.Stdout())
	}
	if s.Failure() != nil {
		t.Errorf("clean exit must not record a failure")
	}
}

func TestSupervisor_InvalidDir(t *testing.T) {
	s, _ := newShellSupervisor(t)
	spec := shellSpec(echoLoop)
	spec.Dir = filepath.Join(t.TempDir(), "missing")

	err := s.Start(spec)
	if !errors.Is(err, ErrExecutionFailed) || !errors.Is(err, ErrInvalidRunSpec) {
		t.Fatalf("expected invalid spec execution error, got %v", err)
	}
	if f := s.Failure(); f == nil || f.Kind != FailureSpawn {
		t.Errorf("expected spawn failure, got %+v", f)
	}
}

func TestSupervisor_Environment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("API_URL=http://localhost:8080\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, sink := newShellSupervisor(t,
		WithPathDirs("/opt/devpilot-test/bin"),
		WithEnviron(func() []string { return []string{"PATH=/usr/bin:/bin", "HOME=/tmp"} }),
		WithIDGenerator(func() string { return "run-1" }),
	)

	spec := shellSpec(`echo "path=$PATH"; echo "api=$API_URL"; echo "flavor=$FLAVOR"`)
	spec.Dir = dir
	spec.EnvFiles = []string{".env"}
	spec.Env = map[string]string{"FLAVOR": "dev"}
	if err := s.Start(spec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "idle", func() bool { return s.State() == StateIdle })

	out := sink.Stdout()
	for _, want := range []string{
		"path=/opt/devpilot-test/bin:/usr/bin:/bin",
		"api=http://localhost:8080",
		"flavor=dev",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
	if info, _ := s.Info(); info.ID != "run-1" {
		t.Errorf("expected run ID run-1, got %q", info.ID)
	}
}
