package output

import (
	"strings"
	"unicode"
)

// Classification is the outcome of a Rule.
type Classification struct {
	Level   Level
	Message string
}

// Rule recognizes one line format. Classify returns false when the line
// is not in the rule's format so the next rule can try.
type Rule interface {
	Name() string
	Classify(line string) (Classification, bool)
}

// RuleFunc adapts a function into a named Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(line string) (Classification, bool)
}

// Name returns the rule name.
func (r RuleFunc) Name() string { return r.RuleName }

// Classify calls Fn.
func (r RuleFunc) Classify(line string) (Classification, bool) { return r.Fn(line) }

// TagRule handles logcat-style "E/Tag: message" lines.
type TagRule struct{}

// Name returns "tag".
func (TagRule) Name() string { return "tag" }

// Classify maps the E/, W/, D/ and I/ prefixes.
func (TagRule) Classify(line string) (Classification, bool) {
	if len(line) < 2 || line[1] != '/' {
		return Classification{}, false
	}
	var level Level
	switch line[0] {
	case 'E':
		level = LevelError
	case 'W':
		level = LevelWarning
	case 'D':
		level = LevelDebug
	case 'I':
		level = LevelInfo
	default:
		return Classification{}, false
	}
	return Classification{Level: level, Message: strings.TrimSpace(line[2:])}, true
}

// PrefixRule unwraps lines a tool prefixes with its own name, such as
// "flutter: message". Matching lines are Info.
type PrefixRule struct {
	Prefixes []string
}

// DefaultToolPrefixes are the tool prefixes recognized by default.
var DefaultToolPrefixes = []string{"flutter:"}

// Name returns "prefix".
func (PrefixRule) Name() string { return "prefix" }

// Classify strips the first matching prefix.
func (r PrefixRule) Classify(line string) (Classification, bool) {
	for _, p := range r.Prefixes {
		if strings.HasPrefix(line, p) {
			return Classification{Level: LevelInfo, Message: strings.TrimSpace(line[len(p):])}, true
		}
	}
	return Classification{}, false
}

// MarkerRule handles Metro-style " LOG  ", " WARN  " and " ERROR  " markers.
// A marker counts only as a whole word followed by a space.
type MarkerRule struct{}

var markers = []struct {
	token string
	level Level
}{
	{"ERROR ", LevelError},
	{"WARN ", LevelWarning},
	{"LOG ", LevelInfo},
}

// Name returns "marker".
func (MarkerRule) Name() string { return "marker" }

// Classify strips the marker token and maps its level.
func (MarkerRule) Classify(line string) (Classification, bool) {
	for _, m := range markers {
		idx := wordIndex(line, m.token)
		if idx < 0 {
			continue
		}
		msg := line[:idx] + line[idx+len(m.token):]
		return Classification{Level: m.level, Message: strings.TrimSpace(msg)}, true
	}
	return Classification{}, false
}

// wordIndex finds token where it starts the line or follows whitespace.
func wordIndex(line, token string) int {
	from := 0
	for {
		i := strings.Index(line[from:], token)
		if i < 0 {
			return -1
		}
		i += from
		if i == 0 || unicode.IsSpace(rune(line[i-1])) {
			return i
		}
		from = i + 1
	}
}

// KeywordRule is the fallback scan. It always matches.
type KeywordRule struct{}

var (
	errorKeywords   = []string{"ERROR", "EXCEPTION", "FATAL", "FAILURE"}
	warningKeywords = []string{"WARN"}
	debugKeywords   = []string{"DEBUG"}
)

// Name returns "keyword".
func (KeywordRule) Name() string { return "keyword" }

// Classify scans the whole line case-insensitively. WARN also covers WARNING.
func (KeywordRule) Classify(line string) (Classification, bool) {
	upper := strings.ToUpper(line)
	level := LevelInfo
	switch {
	case containsAny(upper, errorKeywords):
		level = LevelError
	case containsAny(upper, warningKeywords):
		level = LevelWarning
	case containsAny(upper, debugKeywords):
		level = LevelDebug
	}
	return Classification{Level: level, Message: strings.TrimSpace(line)}, true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// StructuredRules returns the built-in format rules in priority order.
// With no prefixes the prefix rule uses DefaultToolPrefixes.
func StructuredRules(prefixes ...string) []Rule {
	if len(prefixes) == 0 {
		prefixes = DefaultToolPrefixes
	}
	return []Rule{
		TagRule{},
		PrefixRule{Prefixes: prefixes},
		MarkerRule{},
	}
}
