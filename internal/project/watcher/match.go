package watcher

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which root-relative paths are interesting.
// Paths are slash separated and never start with "/".
type Matcher struct {
	include []string
	ignore  []string
}

// NewMatcher validates and compiles include and ignore globs.
func NewMatcher(include, ignore []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range include {
		p = normalizePattern(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
		m.include = append(m.include, p)
	}
	for _, p := range ignore {
		p = normalizePattern(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
		m.ignore = append(m.ignore, p)
	}
	return m, nil
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

// Ignored reports whether rel is excluded. A directory pattern such as
// "build/**" also excludes the directory "build" itself.
func (m *Matcher) Ignored(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, p := range m.ignore {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
		if base, ok := strings.CutSuffix(p, "/**"); ok && doublestar.MatchUnvalidated(base, rel) {
			return true
		}
	}
	// Ignoring a directory ignores everything below it.
	if dir := path.Dir(rel); dir != "." {
		return m.Ignored(dir)
	}
	return false
}

// Match reports whether rel names a file that should produce events.
func (m *Matcher) Match(rel string) bool {
	if m.Ignored(rel) {
		return false
	}
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}
