package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the ISO 8601 layout used in exports.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatRecord renders r as "[timestamp] [LEVEL] message".
func FormatRecord(r Record) string {
	msg := strings.ReplaceAll(r.Message, "\n", " ")
	return fmt.Sprintf("[%s] [%s] %s", r.Time.Format(TimestampLayout), r.Level, msg)
}

// WriteRecords writes one formatted line per record.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(FormatRecord(r)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFileAtomic writes records to path through a temp file in the same
// directory and renames it into place, so readers never see a partial file.
func WriteFileAtomic(path string, records []Record) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = WriteRecords(tmp, records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

var exportLine = regexp.MustCompile(`^\[([^\]]+)\] \[([A-Z]+)\] ?(.*)$`)

// ExportedLine is one parsed export line.
type ExportedLine struct {
	Time    time.Time
	Level   Level
	Message string
}

// ReadExport parses a file produced by Export.
func ReadExport(r io.Reader) ([]ExportedLine, error) {
	var lines []ExportedLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		m := exportLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			return nil, fmt.Errorf("line %d: malformed export line", n)
		}
		ts, err := time.Parse(TimestampLayout, m[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		level, err := ParseLevel(m[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, ExportedLine{Time: ts, Level: level, Message: m[3]})
	}
	return lines, scanner.Err()
}
