package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnv() []string { return nil }

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxEntries != 5000 {
		t.Errorf("MaxEntries = %d, want 5000", cfg.MaxEntries)
	}
	if cfg.GracePeriod != 500*time.Millisecond {
		t.Errorf("GracePeriod = %v", cfg.GracePeriod)
	}
	for _, name := range []string{"flutter", "react-native", "gradle", "xcodebuild", "adb-logcat"} {
		if _, ok := cfg.Profiles[name]; !ok {
			t.Errorf("missing built-in profile %q", name)
		}
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, err := Load(Options{Path: missing, Environ: noEnv})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("explicit missing file: err = %v, cfg = %v", err, cfg)
	}
}

func TestLoadTOMLMergesProfiles(t *testing.T) {
	path := writeConfig(t, "config.toml", `
grace_period = "1s"
max_entries = 200

[profiles.flutter]
args = ["run", "-d", "ios"]

[profiles.custom]
executable = "./tool.sh"
quit_token = "exit"

[watch]
enabled = true
debounce = "50ms"
`)

	cfg, used, err := Load(Options{Path: path, Environ: noEnv})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Errorf("used = %q, want %q", used, path)
	}
	if cfg.GracePeriod != time.Second {
		t.Errorf("GracePeriod = %v", cfg.GracePeriod)
	}
	if cfg.MaxEntries != 200 {
		t.Errorf("MaxEntries = %d", cfg.MaxEntries)
	}

	flutter := cfg.Profiles["flutter"]
	if got := flutter.Args; len(got) != 3 || got[2] != "ios" {
		t.Errorf("flutter args = %v", got)
	}
	if flutter.QuitToken != "q" || !flutter.HotReload {
		t.Errorf("built-in flutter fields lost in merge: %+v", flutter)
	}

	custom := cfg.Profiles["custom"]
	if custom.Executable != "./tool.sh" || custom.QuitToken != "exit" {
		t.Errorf("custom = %+v", custom)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce != 50*time.Millisecond {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if len(cfg.Watch.Patterns) == 0 {
		t.Error("default watch patterns lost in merge")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
default_profile: adb-logcat
extra_path: [/opt/sdk/bin]
rules:
  script: rules.lua
`)

	cfg, _, err := Load(Options{Path: path, Environ: noEnv})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProfile != "adb-logcat" {
		t.Errorf("DefaultProfile = %q", cfg.DefaultProfile)
	}
	if cfg.Rules.Script != "rules.lua" {
		t.Errorf("Rules.Script = %q", cfg.Rules.Script)
	}
	dirs := cfg.SearchDirs(cfg.Profiles["adb-logcat"])
	if len(dirs) == 0 || dirs[0] != "/opt/sdk/bin" {
		t.Errorf("SearchDirs = %v", dirs)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "config.toml", `
log_level = "warn"
max_entries = 100
grace_period = "2s"
`)
	environ := func() []string {
		return []string{"DEVPILOT_MAX_ENTRIES=300", "DEVPILOT_GRACE_PERIOD=3s"}
	}

	cfg, _, err := Load(Options{
		Path:      path,
		Environ:   environ,
		Overrides: map[string]any{"grace_period": "4s", "watch.enabled": true},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, file value expected", cfg.LogLevel)
	}
	if cfg.MaxEntries != 300 {
		t.Errorf("MaxEntries = %d, env value expected", cfg.MaxEntries)
	}
	if cfg.GracePeriod != 4*time.Second {
		t.Errorf("GracePeriod = %v, override expected", cfg.GracePeriod)
	}
	if !cfg.Watch.Enabled {
		t.Error("watch.enabled override not applied")
	}
}

func TestLoadBareIntegerDurations(t *testing.T) {
	path := writeConfig(t, "config.toml", "grace_period = 250\n")

	tests := []struct {
		name     string
		environ  []string
		grace    time.Duration
		debounce time.Duration
	}{
		{"file value", nil, 250 * time.Millisecond, 300 * time.Millisecond},
		{"zero from env", []string{"DEVPILOT_GRACE_PERIOD=0"}, 0, 300 * time.Millisecond},
		{"millis from env", []string{"DEVPILOT_GRACE_PERIOD=500", "DEVPILOT_WATCH_DEBOUNCE=75"}, 500 * time.Millisecond, 75 * time.Millisecond},
		{"duration string", []string{"DEVPILOT_GRACE_PERIOD=2s"}, 2 * time.Second, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := Load(Options{Path: path, Environ: func() []string { return tt.environ }})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.GracePeriod != tt.grace {
				t.Errorf("GracePeriod = %v, want %v", cfg.GracePeriod, tt.grace)
			}
			if cfg.Watch.Debounce != tt.debounce {
				t.Errorf("Debounce = %v, want %v", cfg.Watch.Debounce, tt.debounce)
			}
		})
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "config.toml", "max_entrys = 10\n")

	_, _, err := Load(Options{Path: path, Environ: noEnv})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max entries", func(c *Config) { c.MaxEntries = 0 }, "max_entries"},
		{"grace", func(c *Config) { c.GracePeriod = -time.Second }, "grace_period"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"default profile", func(c *Config) { c.DefaultProfile = "nope" }, "default_profile"},
		{"executable", func(c *Config) { c.Profiles["x"] = Profile{} }, "profiles.x.executable"},
		{"min version", func(c *Config) {
			p := c.Profiles["flutter"]
			p.MinVersion = "not a version"
			c.Profiles["flutter"] = p
		}, "profiles.flutter.min_version"},
		{"tool prefixes", func(c *Config) {
			c.Profiles["x"] = Profile{Executable: "x", ToolPrefixes: []string{"x:", " "}}
		}, "profiles.x.tool_prefixes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}

	cfg := Default()
	cfg.Watch.Patterns = []string{"lib/[.dart"}
	if err := cfg.Validate(); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("bad glob: err = %v", err)
	}
}

func TestProfileLookup(t *testing.T) {
	cfg := Default()

	name, p, err := cfg.Profile("")
	if err != nil || name != "flutter" || p.Executable != "flutter" {
		t.Fatalf("default profile: %q %+v %v", name, p, err)
	}

	if _, _, err := cfg.Profile("cordova"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestProfileRunSpec(t *testing.T) {
	p := Profiles()["flutter"]
	p.Env = map[string]string{"FLAVOR": "dev"}

	spec := p.RunSpec("flutter", "/src/app")
	if spec.Tool != "flutter" || spec.Dir != "/src/app" || spec.QuitToken != "q" {
		t.Errorf("spec = %+v", spec)
	}
	if !spec.HotReload || !spec.HotRestart {
		t.Error("hot reload flags not carried")
	}

	spec.Args[0] = "mutated"
	spec.Env["FLAVOR"] = "prod"
	if p.Args[0] != "run" || p.Env["FLAVOR"] != "dev" {
		t.Error("RunSpec must not alias profile slices or maps")
	}
}
