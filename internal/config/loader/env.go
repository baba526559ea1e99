package loader

import (
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
)

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // e.g. "DEVPILOT_"
	mapping map[string]string // env var -> config path
	environ func() []string
}

// NewEnvLoader creates an environment loader with the default mapping.
// The prefix should include the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: DefaultEnvMapping(prefix),
		environ: os.Environ,
	}
}

// NewEnvLoaderWithMapping creates a loader with custom mappings and an
// explicit environment source.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string, environ func() []string) *EnvLoader {
	if environ == nil {
		environ = os.Environ
	}
	return &EnvLoader{prefix: prefix, mapping: mapping, environ: environ}
}

// DefaultEnvMapping returns the standard variable to config path mapping.
// DEVPILOT_PROFILE is the short form of DEVPILOT_DEFAULT_PROFILE and wins
// when both are set.
func DefaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "LOG_LEVEL":       "log_level",
		prefix + "MAX_ENTRIES":     "max_entries",
		prefix + "DEFAULT_PROFILE": "default_profile",
		prefix + "PROFILE":         "default_profile",
		prefix + "GRACE_PERIOD":    "grace_period",
		prefix + "WATCH_ENABLED":   "watch.enabled",
		prefix + "WATCH_DEBOUNCE":  "watch.debounce",
		prefix + "RULES_SCRIPT":    "rules.script",
		prefix + "EXPORT_DIR":      "export_dir",
	}
}

// Load returns the mapped variables as a nested map. Unmapped variables
// with the prefix are ignored. Variables mapping to the same path are
// applied in name order, so the result never depends on environment order.
func (l *EnvLoader) Load() (map[string]any, error) {
	values := make(map[string]string)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if _, mapped := l.mapping[name]; mapped {
			values[name] = value
		}
	}

	config := make(map[string]any)
	for _, name := range slices.Sorted(maps.Keys(values)) {
		setByPath(config, l.mapping[name], parseValue(values[name]))
	}
	return config, nil
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// parseValue converts a string to bool or int when it parses as one.
// Other values, durations like "750ms" included, stay strings.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
