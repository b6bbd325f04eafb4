package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/coeftune/internal/shot"
)

var started = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func testShot(i int) shot.Record {
	rec := shot.Record{
		Timestamp: float64(i) + 0.25,
		Hit:       i%2 == 0,
		Distance:  3 + float64(i)/10,
		Solution: shot.Solution{
			PitchRadians: 0.6,
			ExitVelocity: 11.5,
			YawRadians:   -0.01,
		},
		Coefficient:  "DragCoefficient",
		Coefficients: map[string]float64{"DragCoefficient": 0.47, "VelocityIterationCount": 12},
	}
	if i%3 == 0 {
		rec.Accuracy = ptr(0.75)
	}
	return rec
}

func TestOpenNamesFiles(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "logs"), "coeftune", started, 10)
	require.NoError(t, err)
	defer j.Close()

	assert.Equal(t, filepath.Join(dir, "logs", "coeftune_shots_20260301_093000.jsonl"), j.ShotsPath())
	assert.Equal(t, filepath.Join(dir, "logs", "coeftune_history_20260301_093000.jsonl"), j.HistoryPath())
	assert.FileExists(t, j.ShotsPath())
	assert.FileExists(t, j.HistoryPath())
}

func TestShotRoundTrip(t *testing.T) {
	j, err := Open(t.TempDir(), "coeftune", started, 4)
	require.NoError(t, err)

	var want []shot.Record
	for i := range 11 {
		rec := testShot(i)
		want = append(want, rec)
		require.NoError(t, j.LogShot(rec))
	}
	require.NoError(t, j.Close())

	got, err := ReadShots(j.ShotsPath())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestShotBatching(t *testing.T) {
	j, err := Open(t.TempDir(), "coeftune", started, 10)
	require.NoError(t, err)
	defer j.Close()

	for i := range 9 {
		require.NoError(t, j.LogShot(testShot(i)))
	}
	assert.Equal(t, 9, j.Unflushed())
	onDisk, err := ReadShots(j.ShotsPath())
	require.NoError(t, err)
	assert.Empty(t, onDisk, "nothing flushed before the batch fills")

	require.NoError(t, j.LogShot(testShot(9)))
	assert.Equal(t, 0, j.Unflushed())
	onDisk, err = ReadShots(j.ShotsPath())
	require.NoError(t, err)
	assert.Len(t, onDisk, 10)

	require.NoError(t, j.LogShot(testShot(10)))
	require.NoError(t, j.Flush())
	onDisk, _ = ReadShots(j.ShotsPath())
	assert.Len(t, onDisk, 11)
}

func TestHistoryWrittenImmediately(t *testing.T) {
	j, err := Open(t.TempDir(), "coeftune", started, 10)
	require.NoError(t, err)
	defer j.Close()

	entries := []HistoryEntry{
		{
			Kind:         KindSessionStart,
			Time:         started,
			SessionID:    "s-1",
			Coefficient:  "DragCoefficient",
			Coefficients: map[string]float64{"DragCoefficient": 0.47},
		},
		{
			Kind:         KindOptimization,
			Time:         started.Add(time.Minute),
			SessionID:    "s-1",
			Coefficient:  "DragCoefficient",
			Previous:     ptr(0.47),
			Value:        ptr(0.49),
			Shots:        10,
			Coefficients: map[string]float64{"DragCoefficient": 0.49},
		},
		{
			Kind:         KindBacktrack,
			Time:         started.Add(2 * time.Minute),
			SessionID:    "s-1",
			Coefficient:  "DragCoefficient",
			From:         ptr(2),
			To:           ptr(0),
			Coefficients: map[string]float64{"DragCoefficient": 0.49},
		},
	}
	for i, e := range entries {
		require.NoError(t, j.LogHistory(e))
		got, err := ReadHistory(j.HistoryPath())
		require.NoError(t, err)
		require.Len(t, got, i+1)
		assert.Equal(t, e, got[i])
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	j, err := Open(t.TempDir(), "coeftune", started, 10)
	require.NoError(t, err)
	require.NoError(t, j.LogShot(testShot(1)))

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.LogShot(testShot(2)), ErrClosed)
	assert.ErrorIs(t, j.LogHistory(HistoryEntry{Kind: KindManualChange}), ErrClosed)

	got, err := ReadShots(j.ShotsPath())
	require.NoError(t, err)
	assert.Len(t, got, 1, "close flushes the partial batch")
}

func TestReadShotsReportsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"timestamp\":1}\nnot json\n"), 0o644))

	got, err := ReadShots(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:2")
	assert.Len(t, got, 1)
}
