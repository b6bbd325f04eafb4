// Package journal persists accepted shots and the coefficient history as
// JSON lines, one pair of files per session.
//
// Shots are batched: the shot log is flushed every K records and on Close,
// so at most K-1 records are ever held in memory. History entries are rare
// and important, so each one is flushed and synced before LogHistory
// returns.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/coeftune/internal/shot"
)

// Kind classifies a history entry.
type Kind string

const (
	KindSessionStart Kind = "SESSION_START"
	KindOptimization Kind = "OPTIMIZATION"
	KindManualChange Kind = "MANUAL_CHANGE"
	KindBacktrack    Kind = "BACKTRACK"
)

// HistoryEntry is one line of the history log. Coefficients is the full
// snapshot after the change.
type HistoryEntry struct {
	Kind         Kind               `json:"kind"`
	Time         time.Time          `json:"timestamp"`
	SessionID    string             `json:"session_id"`
	Coefficient  string             `json:"coefficient,omitempty"`
	Previous     *float64           `json:"previous,omitempty"`
	Value        *float64           `json:"value,omitempty"`
	Shots        int                `json:"shots,omitempty"`
	From         *int               `json:"from,omitempty"`
	To           *int               `json:"to,omitempty"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// ErrClosed is returned when logging to a closed journal.
var ErrClosed = errors.New("journal closed")

// stampLayout names session files; it sorts chronologically.
const stampLayout = "20060102_150405"

// Journal is safe for concurrent use.
type Journal struct {
	mu sync.Mutex

	shotsPath   string
	historyPath string

	shotsFile   *os.File
	shotsBuf    *bufio.Writer
	historyFile *os.File

	flushEvery int
	unflushed  int
	closed     bool
}

// Open creates the session's shot and history logs in dir. flushEvery is
// the shot batch size; values below 1 flush every shot.
func Open(dir, prefix string, started time.Time, flushEvery int) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if flushEvery < 1 {
		flushEvery = 1
	}

	stamp := started.Format(stampLayout)
	j := &Journal{
		shotsPath:   filepath.Join(dir, fmt.Sprintf("%s_shots_%s.jsonl", prefix, stamp)),
		historyPath: filepath.Join(dir, fmt.Sprintf("%s_history_%s.jsonl", prefix, stamp)),
		flushEvery:  flushEvery,
	}

	var err error
	if j.shotsFile, err = openAppend(j.shotsPath); err != nil {
		return nil, err
	}
	if j.historyFile, err = openAppend(j.historyPath); err != nil {
		_ = j.shotsFile.Close()
		return nil, err
	}
	j.shotsBuf = bufio.NewWriter(j.shotsFile)
	return j, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// ShotsPath returns the shot log path.
func (j *Journal) ShotsPath() string { return j.shotsPath }

// HistoryPath returns the history log path.
func (j *Journal) HistoryPath() string { return j.historyPath }

// LogShot appends an accepted shot, flushing once a batch is full.
func (j *Journal) LogShot(rec shot.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode shot: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	if _, err := j.shotsBuf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write shot: %w", err)
	}
	j.unflushed++
	if j.unflushed >= j.flushEvery {
		return j.flushLocked()
	}
	return nil
}

// LogHistory appends a history entry and syncs it to disk.
func (j *Journal) LogHistory(e HistoryEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	if _, err := j.historyFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := j.historyFile.Sync(); err != nil {
		return fmt.Errorf("sync history: %w", err)
	}
	return nil
}

// Unflushed returns how many shots are buffered in memory.
func (j *Journal) Unflushed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.unflushed
}

// Flush writes buffered shots to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if err := j.shotsBuf.Flush(); err != nil {
		return fmt.Errorf("flush shots: %w", err)
	}
	j.unflushed = 0
	return nil
}

// Close flushes pending shots and closes both files. It is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true

	return errors.Join(
		j.flushLocked(),
		j.shotsFile.Close(),
		j.historyFile.Close(),
	)
}

// ReadShots parses a shot log.
func ReadShots(path string) ([]shot.Record, error) {
	return readLines[shot.Record](path)
}

// ReadHistory parses a history log.
func ReadHistory(path string) ([]HistoryEntry, error) {
	return readLines[HistoryEntry](path)
}

func readLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			return out, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}
