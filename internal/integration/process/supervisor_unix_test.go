//go:build unix

package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// lockedBuffer is a log destination shared by several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func stopWithin(t *testing.T, s *Supervisor, d time.Duration) time.Duration {
	t.Helper()
	start := time.Now()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("Stop still blocked after %v; state=%v", d, s.State())
	}
	return time.Since(start)
}

func TestSupervisor_StopWithFullStdin(t *testing.T) {
	s, sink := newShellSupervisor(t, WithGracePeriod(300*time.Millisecond))

	spec := shellSpec(`echo ready; exec sleep 30`)
	spec.QuitToken = "q"
	if err := s.Start(spec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready", func() bool { return strings.Contains(sink.Stdout(), "ready") })

	// The child never reads stdin, so this write fills the pipe and blocks.
	sendErr := make(chan error, 1)
	go func() { sendErr <- s.SendInput(strings.Repeat("x", 256<<10)) }()
	time.Sleep(100 * time.Millisecond)

	stopWithin(t, s, 5*time.Second)
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}

	select {
	case err := <-sendErr:
		if err == nil {
			t.Error("expected the blocked write to fail once the child was gone")
		}
	case <-time.After(3 * time.Second):
		t.Error("SendInput still blocked after Stop")
	}

	if err := s.Start(shellSpec(echoLoop)); err != nil {
		t.Fatalf("Start after stop: %v", err)
	}
}

func TestSupervisor_QuitTokenIgnored(t *testing.T) {
	const grace = 300 * time.Millisecond
	s, sink := newShellSupervisor(t, WithGracePeriod(grace))

	spec := shellSpec(`trap '' TERM; echo ready; while :; do sleep 0.1; done`)
	spec.QuitToken = "q"
	if err := s.Start(spec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready", func() bool { return strings.Contains(sink.Stdout(), "ready") })
	info, _ := s.Info()

	elapsed := stopWithin(t, s, 5*time.Second)
	if elapsed < grace {
		t.Errorf("Stop returned after %v, before the %v grace period", elapsed, grace)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}
	if err := syscall.Kill(info.PID, 0); !errors.Is(err, syscall.ESRCH) {
		t.Errorf("process %d still exists after Stop: %v", info.PID, err)
	}
}

var orphanPID = regexp.MustCompile(`orphan=(\d+)`)

func TestSupervisor_StopWakesReadersHeldByOrphan(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	logs := &lockedBuffer{}
	s, sink := newShellSupervisor(t, WithLogger(zerolog.New(logs)))

	// The orphan leaves the process group but inherits stdout and stderr,
	// so the pipes stay open after the group is killed.
	spec := shellSpec(`setsid sleep 30 & echo "orphan=$!"; echo ready; while read line; do :; done`)
	if err := s.Start(spec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ready", func() bool { return strings.Contains(sink.Stdout(), "ready") })
	if m := orphanPID.FindStringSubmatch(sink.Stdout()); m != nil {
		if pid, err := strconv.Atoi(m[1]); err == nil {
			t.Cleanup(func() { _ = syscall.Kill(pid, syscall.SIGKILL) })
		}
	}

	stopWithin(t, s, 5*time.Second)
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %v", s.State())
	}
	if strings.Contains(logs.String(), "read loops did not finish") {
		t.Errorf("read loops stayed blocked on the orphaned pipes:\n%s", logs.String())
	}
}

func TestSupervisor_ReadFailureReachesLog(t *testing.T) {
	s, sink := newShellSupervisor(t)

	// Reading a directory fails with an error other than EOF.
	dir, err := os.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	r := &run{id: "read-test", ctx: context.Background()}
	r.readers.Add(1)
	s.readLoop(r, dir, true)

	sink.mu.Lock()
	fails := append([]string(nil), sink.fails...)
	sink.mu.Unlock()
	if len(fails) != 1 || !strings.Contains(fails[0], "read stderr") {
		t.Errorf("failure notices = %q", fails)
	}
}

func TestProcess_KillReportsBothFailures(t *testing.T) {
	groupErr := errors.New("group kill refused")
	orig := killGroup
	killGroup = func(int) error { return groupErr }
	t.Cleanup(func() { killGroup = orig })

	self, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if err := self.Release(); err != nil {
		t.Fatal(err)
	}
	proc := newProcess("id", "released", &exec.Cmd{Process: self})

	err = proc.Kill()
	if !errors.Is(err, groupErr) {
		t.Errorf("Kill = %v, want the group kill error", err)
	}
	if err == nil || !strings.Contains(err.Error(), "released") {
		t.Errorf("Kill = %v, want the leader kill error too", err)
	}
}
