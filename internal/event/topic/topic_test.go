package topic

import "testing"

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"supervisor.state.changed", "supervisor.state.changed", true},
		{"supervisor.state.changed", "supervisor.*.changed", true},
		{"supervisor.state.changed", "supervisor.*", false},
		{"supervisor.state.changed", "supervisor.**", true},
		{"supervisor", "supervisor.**", true},
		{"log.record.appended", "**", true},
		{"log.record.appended", "*.record.*", true},
		{"log.buffer.cleared", "log.record.*", false},
		{"log", "log.*", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic)+"~"+string(tt.pattern), func(t *testing.T) {
			if got := tt.topic.Matches(tt.pattern); got != tt.want {
				t.Errorf("%q.Matches(%q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestTopic_IsValid(t *testing.T) {
	valid := []Topic{"log", "log.record", "a.b.c"}
	invalid := []Topic{"", ".log", "log.", "log..record"}

	for _, tp := range valid {
		if !tp.IsValid() {
			t.Errorf("expected %q to be valid", tp)
		}
	}
	for _, tp := range invalid {
		if tp.IsValid() {
			t.Errorf("expected %q to be invalid", tp)
		}
	}
}

func TestJoinAndChild(t *testing.T) {
	if got := Join("log", "record", "appended"); got != "log.record.appended" {
		t.Errorf("Join = %q", got)
	}
	if got := Topic("log").Child("buffer").Child("cleared"); got != "log.buffer.cleared" {
		t.Errorf("Child = %q", got)
	}
	if got := Topic("").Child("log"); got != "log" {
		t.Errorf("empty Child = %q", got)
	}
}
