package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"session started","session_id":"s1","component":"coordinator"}
not json
{"time":"2026-03-01T10:00:02Z","level":"WARN","msg":"shot rejected","session_id":"s1","component":"shot","field":"distance"}
{"time":"2026-03-01T10:00:03Z","level":"INFO","msg":"optimization applied","session_id":"s1","coefficient":"Drag","value":0.4}
`

func TestReadLogs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}
	older := `{"time":"2026-03-01T09:59:00Z","level":"DEBUG","msg":"older"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, LogFileName+".1"), []byte(older), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadLogs(dir)
	if err != nil {
		t.Fatalf("ReadLogs failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	if entries[0].Message != "older" {
		t.Errorf("first entry = %q, want backup entry first", entries[0].Message)
	}
	if entries[2].Attrs["field"] != "distance" {
		t.Errorf("Attrs[field] = %v, want distance", entries[2].Attrs["field"])
	}
	if entries[3].Coefficient != "Drag" {
		t.Errorf("Coefficient = %q, want Drag", entries[3].Coefficient)
	}
}

func TestReadLogsMissingFile(t *testing.T) {
	if _, err := ReadLogs(t.TempDir()); err == nil {
		t.Error("ReadLogs on empty dir should fail")
	}
}

func TestFilterLogs(t *testing.T) {
	entries, err := parseLogs(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"empty", LogFilter{}, 3},
		{"min level warn", LogFilter{Level: "warn"}, 1},
		{"coefficient", LogFilter{Coefficient: "Drag"}, 1},
		{"component", LogFilter{Component: "coordinator"}, 1},
		{"since", LogFilter{Since: time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)}, 2},
		{"contains", LogFilter{Contains: "shot"}, 1},
		{"session mismatch", LogFilter{SessionID: "other"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(FilterLogs(entries, tt.filter)); got != tt.want {
				t.Errorf("FilterLogs() returned %d entries, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatEntry(t *testing.T) {
	e := LogEntry{
		Time:        time.Date(2026, 3, 1, 10, 0, 3, 0, time.UTC),
		Level:       "INFO",
		Message:     "optimization applied",
		Coefficient: "Drag",
		Component:   "coordinator",
		Attrs:       map[string]any{"value": 0.4, "from": 0.3},
	}
	want := "10:00:03.000 INFO  [coordinator] (Drag) optimization applied from=0.3 value=0.4"
	if got := FormatEntry(e); got != want {
		t.Errorf("FormatEntry() = %q, want %q", got, want)
	}
}
