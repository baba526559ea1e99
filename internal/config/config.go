package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/adrg/xdg"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/dshills/devpilot/internal/config/loader"
	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "DEVPILOT_"

// AppName names the XDG subdirectories devpilot uses.
const AppName = "devpilot"

// Config is the merged devpilot configuration.
type Config struct {
	// LogLevel is the diagnostic log level (zerolog names).
	LogLevel string `yaml:"log_level"`

	// MaxEntries caps the classified log buffer.
	MaxEntries int `yaml:"max_entries"`

	// DefaultProfile is used when no profile is named on the command line.
	DefaultProfile string `yaml:"default_profile"`

	// GracePeriod is how long stop waits after the quit token.
	GracePeriod time.Duration `yaml:"grace_period"`

	// ExtraPath dirs are probed for executables and prepended to the
	// child PATH ahead of the built-in tool dirs.
	ExtraPath []string `yaml:"extra_path"`

	// ExportDir is where exports without an explicit path are written.
	ExportDir string `yaml:"export_dir"`

	Profiles map[string]Profile `yaml:"profiles"`
	Watch    WatchConfig        `yaml:"watch"`
	Rules    RulesConfig        `yaml:"rules"`
}

// WatchConfig controls file-save hot reload.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`

	// Patterns are doublestar globs relative to the run directory.
	Patterns []string `yaml:"patterns"`

	// Ignore globs are matched against paths relative to the run directory.
	Ignore []string `yaml:"ignore"`

	Debounce time.Duration `yaml:"debounce"`
}

// RulesConfig points at user classification rules.
type RulesConfig struct {
	// Script is a Lua file defining classify(line).
	Script string `yaml:"script"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		MaxEntries:     output.DefaultMaxEntries,
		DefaultProfile: "flutter",
		GracePeriod:    process.DefaultGracePeriod,
		ExportDir:      filepath.Join(xdg.DataHome, AppName, "exports"),
		Profiles:       Profiles(),
		Watch: WatchConfig{
			Patterns: []string{"lib/**/*.dart", "src/**/*.{js,jsx,ts,tsx}"},
			Ignore:   []string{".git/**", "build/**", "node_modules/**", ".dart_tool/**"},
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Options controls Load.
type Options struct {
	// Path is the config file. Empty means DefaultPath.
	Path string

	// Environ supplies environment variables. Defaults to os.Environ.
	Environ func() []string

	// Overrides are applied last, as dotted paths ("watch.enabled").
	Overrides map[string]any

	// FS is used to read the config file. Defaults to the OS.
	FS loader.FileSystem
}

// Load builds the configuration from defaults, the config file, the
// environment and overrides, then validates it. It returns the config and
// the file path that was read, if any.
func Load(opts Options) (*Config, string, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, "", fmt.Errorf("rendering defaults: %w", err)
	}

	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		fl, err := loader.ForPath(opts.FS, path)
		if err != nil {
			return nil, "", err
		}
		fileMap, err := fl.Load()
		if err != nil {
			return nil, "", err
		}
		if fileMap == nil && opts.Path != "" {
			return nil, "", fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
		}
		if fileMap == nil {
			path = ""
		}
		merged = loader.DeepMerge(merged, fileMap)
	}

	envMap, err := loader.NewEnvLoaderWithMapping(EnvPrefix, loader.DefaultEnvMapping(EnvPrefix), opts.Environ).Load()
	if err != nil {
		return nil, "", err
	}
	merged = loader.DeepMerge(merged, envMap)

	if len(opts.Overrides) > 0 {
		merged = loader.DeepMerge(merged, expandPaths(opts.Overrides))
	}

	normalizeDurations(merged)
	cfg, err := fromMap(merged)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// DefaultPath returns the first existing config file under the XDG config
// dirs, or "" when there is none.
func DefaultPath() string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		if p, err := xdg.SearchConfigFile(filepath.Join(AppName, name)); err == nil {
			return p
		}
	}
	return ""
}

// expandPaths turns {"watch.enabled": true} into {"watch": {"enabled": true}}.
func expandPaths(flat map[string]any) map[string]any {
	out := make(map[string]any)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts := strings.Split(k, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = flat[k]
	}
	return out
}

// durationPaths are the config keys decoded as time.Duration.
var durationPaths = [][]string{
	{"grace_period"},
	{"watch", "debounce"},
}

// normalizeDurations rewrites bare numbers at duration keys as
// milliseconds, so grace_period = 500 reads as "500ms".
func normalizeDurations(m map[string]any) {
	for _, path := range durationPaths {
		cur := m
		for _, part := range path[:len(path)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = next
		}
		if cur == nil {
			continue
		}
		key := path[len(path)-1]
		switch v := cur[key].(type) {
		case int:
			cur[key] = fmt.Sprintf("%dms", v)
		case int64:
			cur[key] = fmt.Sprintf("%dms", v)
		case uint64:
			cur[key] = fmt.Sprintf("%dms", v)
		case float64:
			cur[key] = fmt.Sprintf("%gms", v)
		}
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding merged config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

// Profile returns the named profile. An empty name selects DefaultProfile.
func (c *Config) Profile(name string) (string, Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return name, Profile{}, fmt.Errorf("%w: %q (have %s)", ErrUnknownProfile, name, strings.Join(c.ProfileNames(), ", "))
	}
	return name, p, nil
}

// ProfileNames returns the profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SearchDirs returns the extra executable search dirs for p: the
// profile's own dirs, then ExtraPath. The built-in tool dirs are added by
// the resolver.
func (c *Config) SearchDirs(p Profile) []string {
	return slices.Concat(p.SearchDirs, c.ExtraPath)
}

// Validate checks field ranges and references.
func (c *Config) Validate() error {
	if c.MaxEntries <= 0 {
		return &ValidationError{Field: "max_entries", Message: fmt.Sprintf("must be positive, got %d", c.MaxEntries)}
	}
	if c.GracePeriod < 0 {
		return &ValidationError{Field: "grace_period", Message: "must not be negative"}
	}
	if c.Watch.Debounce < 0 {
		return &ValidationError{Field: "watch.debounce", Message: "must not be negative"}
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "":
	default:
		return &ValidationError{Field: "log_level", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			return &ValidationError{Field: "default_profile", Message: fmt.Sprintf("no profile named %q", c.DefaultProfile)}
		}
	}
	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		if p.Executable == "" {
			return &ValidationError{Field: "profiles." + name + ".executable", Message: "is required"}
		}
		for _, prefix := range p.ToolPrefixes {
			if strings.TrimSpace(prefix) == "" {
				return &ValidationError{Field: "profiles." + name + ".tool_prefixes", Message: "must not contain empty prefixes"}
			}
		}
		if p.MinVersion != "" {
			if _, err := semver.NewConstraint(p.MinVersion); err != nil {
				return &ValidationError{Field: "profiles." + name + ".min_version", Message: err.Error()}
			}
		}
	}
	for i, pat := range slices.Concat(c.Watch.Patterns, c.Watch.Ignore) {
		if !doublestar.ValidatePattern(pat) {
			return &ValidationError{Field: fmt.Sprintf("watch pattern %d", i), Message: fmt.Sprintf("bad glob %q", pat)}
		}
	}
	return nil
}
