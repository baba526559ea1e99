package output

import "strings"

// Filter selects records by level and message substring.
// The zero value is not "match all"; use AllRecords.
type Filter struct {
	// Level is the exact level to keep, or LevelAll.
	Level Level

	// Search is a case-insensitive substring of the message. Empty matches everything.
	Search string
}

// AllRecords is a filter that matches every record.
var AllRecords = Filter{Level: LevelAll}

// Match reports whether r passes both conditions.
func (f Filter) Match(r Record) bool {
	if f.Level != LevelAll && r.Level != f.Level {
		return false
	}
	if f.Search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Message), strings.ToLower(f.Search))
}

// Apply returns the matching records in order.
func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// IsAll reports whether f matches every record.
func (f Filter) IsAll() bool {
	return f.Level == LevelAll && f.Search == ""
}
