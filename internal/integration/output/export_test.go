package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClassifier_ExportRoundTrip(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	c := NewClassifier(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}))
	c.Ingest("E/App: boom\nW/App: careful\nD/App: detail\nplain", false)
	c.System("Hot restart triggered", false)

	path := filepath.Join(t.TempDir(), "log.txt")
	if err := c.Export(path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines, err := ReadExport(f)
	if err != nil {
		t.Fatalf("ReadExport failed: %v", err)
	}

	entries := c.Entries()
	if len(lines) != len(entries) {
		t.Fatalf("expected %d lines, got %d", len(entries), len(lines))
	}
	for i, e := range entries {
		if lines[i].Level != e.Level || lines[i].Message != e.Message {
			t.Errorf("line %d = (%v, %q), want (%v, %q)", i, lines[i].Level, lines[i].Message, e.Level, e.Message)
		}
		if !lines[i].Time.Equal(e.Time) {
			t.Errorf("line %d time = %v, want %v", i, lines[i].Time, e.Time)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	r := Record{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
		Level:   LevelWarning,
		Message: "two\nlines",
	}
	got := FormatRecord(r)
	want := "[2025-01-02T03:04:05.006Z] [WARNING] two lines"
	if got != want {
		t.Errorf("FormatRecord = %q, want %q", got, want)
	}
}

func TestWriteFileAtomic_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "log.txt")
	if err := WriteFileAtomic(path, nil); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWriteFileAtomic_NoTempLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	if err := WriteFileAtomic(path, []Record{{Level: LevelInfo, Message: "x"}}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.log" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected files: %s", strings.Join(names, ", "))
	}
}

func TestReadExport_Malformed(t *testing.T) {
	if _, err := ReadExport(strings.NewReader("not an export line\n")); err == nil {
		t.Error("expected error for malformed line")
	}
}
