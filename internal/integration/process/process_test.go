package process

import (
	"io"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func TestProcess_PipesAndExit(t *testing.T) {
	requireShell(t)
	cmd := exec.Command("/bin/sh", "-c", `read line; echo "out:$line"; echo "err:$line" >&2; exit 2`)
	proc := newProcess("id", "name", cmd)

	if proc.ExitCode() != -1 || proc.PID() != -1 {
		t.Fatalf("unexpected pre-start values: code=%d pid=%d", proc.ExitCode(), proc.PID())
	}
	if err := proc.openPipes(); err != nil {
		t.Fatal(err)
	}
	if err := proc.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := proc.start(); err != ErrProcessAlreadyStarted {
		t.Errorf("expected ErrProcessAlreadyStarted, got %v", err)
	}

	if _, err := proc.Stdin.WriteString("hi\n"); err != nil {
		t.Fatal(err)
	}
	out, _ := io.ReadAll(proc.Stdout)
	errOut, _ := io.ReadAll(proc.Stderr)

	select {
	case <-proc.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for exit")
	}

	if string(out) != "out:hi\n" || string(errOut) != "err:hi\n" {
		t.Errorf("unexpected output %q / %q", out, errOut)
	}
	if proc.ExitCode() != 2 || proc.Signaled() {
		t.Errorf("expected exit code 2, got %d (signaled=%v)", proc.ExitCode(), proc.Signaled())
	}
	if proc.Runtime() <= 0 {
		t.Error("expected positive runtime")
	}
	if err := proc.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := proc.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestProcess_KillSignals(t *testing.T) {
	requireShell(t)
	if runtime.GOOS == "windows" {
		t.Skip("signals")
	}
	cmd := exec.Command("/bin/sh", "-c", "sleep 30")
	proc := newProcess("id", "sleep", cmd)
	if err := proc.openPipes(); err != nil {
		t.Fatal(err)
	}
	defer proc.Close()
	if err := proc.start(); err != nil {
		t.Fatal(err)
	}

	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process not killed")
	}
	if !proc.Signaled() {
		t.Error("expected signaled exit")
	}
	if err := proc.Kill(); err != nil {
		t.Errorf("Kill after exit should be a no-op, got %v", err)
	}
}

func TestStateStrings(t *testing.T) {
	states := map[State]string{
		StateIdle: "idle", StateStarting: "starting", StateRunning: "running",
		StateStopping: "stopping", StateFailed: "failed",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
	if !StateRunning.Active() || StateFailed.Active() || StateIdle.Active() {
		t.Error("unexpected Active results")
	}
}
