package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of the diagnostic log.
type LogEntry struct {
	Time        time.Time
	Level       string
	Message     string
	SessionID   string
	Coefficient string
	Component   string
	Attrs       map[string]any
}

// LogFilter selects entries from a diagnostic log. Zero-valued fields do
// not filter; set fields are combined with AND.
type LogFilter struct {
	// Level is the minimum level (DEBUG < INFO < WARN < ERROR).
	Level       string
	Since       time.Time
	SessionID   string
	Coefficient string
	Component   string
	Contains    string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadLogs parses {dir}/coeftune.log and its uncompressed backups, oldest
// first. Lines that are not valid JSON are skipped.
func ReadLogs(dir string) ([]LogEntry, error) {
	live := filepath.Join(dir, LogFileName)
	backups, _ := filepath.Glob(live + ".[0-9]*")

	var entries []LogEntry
	for _, path := range append(backups, live) {
		if strings.HasSuffix(path, ".gz") {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) && path != live {
				continue
			}
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		parsed, err := parseLogs(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		entries = append(entries, parsed...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func parseLogs(r io.Reader) ([]LogEntry, error) {
	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry([]byte(line))
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func parseLogEntry(line []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}

	entry := LogEntry{
		Level:       take("level"),
		Message:     take("msg"),
		SessionID:   take("session_id"),
		Coefficient: take("coefficient"),
		Component:   take("component"),
	}
	if ts := take("time"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Time = t
		}
	}
	if len(raw) > 0 {
		entry.Attrs = raw
	}
	return entry, nil
}

// FilterLogs returns the entries matching f.
func FilterLogs(entries []LogEntry, f LogFilter) []LogEntry {
	var out []LogEntry
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f LogFilter) matches(e LogEntry) bool {
	if f.Level != "" {
		min, ok := levelRank[strings.ToUpper(f.Level)]
		got, known := levelRank[e.Level]
		if ok && known && got < min {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Coefficient != "" && e.Coefficient != f.Coefficient {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.Contains != "" && !strings.Contains(e.Message, f.Contains) {
		return false
	}
	return true
}

// FormatEntry renders an entry as one human-readable line.
func FormatEntry(e LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", e.Time.Format("15:04:05.000"), e.Level)
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	if e.Coefficient != "" {
		fmt.Fprintf(&b, " (%s)", e.Coefficient)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
