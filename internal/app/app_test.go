package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/devpilot/internal/config"
	"github.com/dshills/devpilot/internal/event"
	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

var shellResolver = process.ResolverFunc(func(tool string) (string, error) {
	if tool == "sh" {
		return "/bin/sh", nil
	}
	return "", &process.CommandNotFoundError{Tool: tool}
})

func shellConfig(t *testing.T, script string, hotReload bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ExportDir = t.TempDir()
	cfg.GracePeriod = 100 * time.Millisecond
	cfg.Profiles["shell"] = config.Profile{
		Executable: "sh",
		Args:       []string{"-c", script},
		HotReload:  hotReload,
		QuitToken:  "q",
	}
	cfg.DefaultProfile = "shell"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *Application {
	t.Helper()
	requireShell(t)
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	opts.Resolver = shellResolver
	opts.Logger = zerolog.Nop()
	a, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
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

func hasMessage(c *output.Classifier, substr string) bool {
	for _, r := range c.Entries() {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

func TestRunCleanExitAndExport(t *testing.T) {
	cfg := shellConfig(t, `echo "flutter: Launching lib/main.dart"; echo "E/App: crash in build" 1>&2; exit 0`, false)
	exportPath := filepath.Join(t.TempDir(), "out", "session.log")
	a := newTestApp(t, cfg, Options{ExportPath: exportPath})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	c := a.Classifier()
	if c.ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d, want 1", c.ErrorCount())
	}
	if !hasMessage(c, "Launching lib/main.dart") {
		t.Error("stdout line missing from the log")
	}
	if got := a.Supervisor().State(); got != process.StateIdle {
		t.Errorf("state = %v, want Idle", got)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if !strings.Contains(string(data), "[ERROR] App: crash in build") {
		t.Errorf("export = %q", data)
	}
}

func TestProfileToolPrefixes(t *testing.T) {
	cfg := shellConfig(t, `echo "metro: ERROR banner text"; exit 0`, false)
	p := cfg.Profiles["shell"]
	p.ToolPrefixes = []string{"metro:"}
	cfg.Profiles["shell"] = p
	a := newTestApp(t, cfg, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var found bool
	for _, r := range a.Classifier().Entries() {
		if r.Message == "ERROR banner text" {
			found = true
			if r.Level != output.LevelInfo {
				t.Errorf("level = %v, want Info for a prefixed line", r.Level)
			}
		}
	}
	if !found {
		t.Errorf("prefixed line not unwrapped: %v", a.Classifier().Entries())
	}
}

func TestRunExitCode(t *testing.T) {
	a := newTestApp(t, shellConfig(t, `echo "FAILURE: Build failed"; exit 3`, false), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 || exitErr.Profile != "shell" {
		t.Errorf("ExitError = %+v", exitErr)
	}
}

func TestRunCommandNotFound(t *testing.T) {
	cfg := shellConfig(t, "", false)
	cfg.Profiles["missing"] = config.Profile{Executable: "definitely-not-installed"}
	a := newTestApp(t, cfg, Options{Profile: "missing"})

	err := a.Run(context.Background())
	if !errors.Is(err, process.ErrCommandNotFound) {
		t.Fatalf("expected ErrCommandNotFound, got %v", err)
	}
	if a.Classifier().ErrorCount() == 0 {
		t.Error("launch failure should be recorded in the log")
	}
}

func TestUnknownProfile(t *testing.T) {
	_, err := New(config.Default(), Options{Profile: "cordova"})
	if !errors.Is(err, config.ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestBusForwarding(t *testing.T) {
	a := newTestApp(t, shellConfig(t, `echo one; echo two; sleep 5`, false), Options{StayOpen: true})

	var records, states atomic.Int32
	if _, err := a.Bus().Subscribe(TopicRecordAdded, func(context.Context, event.Envelope) error {
		records.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := event.SubscribeTyped(a.Bus(), TopicStateChanged, func(_ context.Context, c process.StateChange) error {
		states.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v", err)
	}

	// "Started ..." notice plus two output lines.
	waitFor(t, "records on the bus", func() bool { return records.Load() >= 3 })
	waitFor(t, "Starting and Running transitions", func() bool { return states.Load() >= 2 })

	a.Clear()
	if a.Classifier().Len() != 0 {
		t.Error("Clear did not empty the log")
	}

	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := a.Supervisor().State(); got != process.StateIdle {
		t.Errorf("state after Shutdown = %v", got)
	}
}

func TestWatchTriggersHotReload(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := shellConfig(t, `while read line; do echo "got $line"; done`, true)
	cfg.Watch.Enabled = true
	cfg.Watch.Patterns = []string{"lib/**/*.dart"}
	cfg.Watch.Debounce = 20 * time.Millisecond

	a := newTestApp(t, cfg, Options{Dir: dir, StayOpen: true})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "lib", "main.dart"), []byte("void main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "hot reload token", func() bool { return hasMessage(a.Classifier(), "got r") })
}

func TestExportAction(t *testing.T) {
	a := newTestApp(t, shellConfig(t, `echo "W/Gradle: slow"; sleep 5`, false), Options{StayOpen: true})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "output", func() bool { return a.Classifier().WarningCount() == 1 })

	path, err := a.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Dir(path) != a.cfg.ExportDir || !strings.HasPrefix(filepath.Base(path), "shell-") {
		t.Errorf("path = %q", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines, err := output.ReadExport(f)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	found := false
	for _, l := range lines {
		if l.Level == output.LevelWarning && l.Message == "Gradle: slow" {
			found = true
		}
	}
	if !found {
		t.Errorf("warning not in export: %+v", lines)
	}

	if err := a.HotReload(); !errors.Is(err, process.ErrUnsupportedOperation) {
		t.Errorf("HotReload on non-reload profile = %v", err)
	}

	st := a.Status()
	if st.Profile != "shell" || st.State != process.StateRunning || st.PID == 0 {
		t.Errorf("Status = %+v", st)
	}
}

func TestLuaRules(t *testing.T) {
	dir := t.TempDir()
	script := `
function classify(line)
  if string.find(line, "SEVERE", 1, true) then
    return { level = "error", message = "custom: " .. line }
  end
  return nil
end
`
	if err := os.WriteFile(filepath.Join(dir, "rules.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := shellConfig(t, `echo "SEVERE disk full"; echo "plain line"`, false)
	cfg.Rules.Script = "rules.lua"

	a := newTestApp(t, cfg, Options{Dir: dir})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasMessage(a.Classifier(), "custom: SEVERE disk full") {
		t.Errorf("rule not applied: %+v", a.Classifier().Entries())
	}
	if a.Classifier().ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d", a.Classifier().ErrorCount())
	}
}

func TestLuaRulesLoadError(t *testing.T) {
	cfg := config.Default()
	cfg.Rules.Script = filepath.Join(t.TempDir(), "missing.lua")
	_, err := New(cfg, Options{Dir: t.TempDir()})
	var cerr *ComponentError
	if !errors.As(err, &cerr) || cerr.Component != "rules" {
		t.Errorf("expected rules ComponentError, got %v", err)
	}
}

func TestInitLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := InitLogging("warning", &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("tool", "flutter").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "tool=flutter") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	logger = InitLogging("bogus", &buf)
	logger.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Error("unknown level should fall back to info")
	}
}
