package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testOptions(clock *fakeClock) Options {
	return Options{
		Address: "memory",
		Classes: []Class{
			{Name: "status", Pattern: "/Tuning/BayesianTuner/**", MaxRateHz: 2},
			{Name: "coefficient", Pattern: "/Tuning/*", MaxRateHz: 10},
		},
		DefaultRateHz:  10,
		CacheTTL:       50 * time.Millisecond,
		ReconnectDelay: 5 * time.Second,
		Now:            clock.Now,
	}
}

func newTestChannel(t *testing.T) (*Channel, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore()
	ch, err := New(store, testOptions(clock))
	require.NoError(t, err)
	require.True(t, ch.Connect(context.Background()))
	return ch, store, clock
}

func TestClassOf(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	tests := []struct {
		path string
		want string
	}{
		{path: "/Tuning/BayesianTuner/ShotCount", want: "status"},
		{path: "/Tuning/BayesianTuner/ManualOverrides/Drag", want: "status"},
		{path: "/Tuning/DragCoefficient", want: "coefficient"},
		{path: "/FiringSolver/Hit", want: DefaultClass},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ch.ClassOf(tt.path))
		})
	}
}

func TestNewRejectsBadClasses(t *testing.T) {
	clock := newFakeClock()

	opts := testOptions(clock)
	opts.Classes = []Class{{Name: "bad", Pattern: "/Tuning/[", MaxRateHz: 1}}
	_, err := New(NewMemoryStore(), opts)
	require.Error(t, err)
	var cfgErr *tunerrors.ConfigurationError
	assert.True(t, tunerrors.As(err, &cfgErr))

	opts = testOptions(clock)
	opts.Classes[0].MaxRateHz = 0
	_, err = New(NewMemoryStore(), opts)
	require.Error(t, err)

	opts = testOptions(clock)
	opts.DefaultRateHz = 0
	_, err = New(NewMemoryStore(), opts)
	require.Error(t, err)
}

// For every half-open one-second window, at most R non-forced writes per
// class reach the store.
func TestWriteRateWindow(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	ctx := context.Background()

	const step = 7 * time.Millisecond
	var applied []time.Time
	for i := range 600 {
		if ch.Write(ctx, "/Tuning/DragCoefficient", float64(i), false) == WriteApplied {
			applied = append(applied, clock.Now())
		}
		clock.Advance(step)
	}

	require.NotEmpty(t, applied)
	for i, start := range applied {
		end := start.Add(time.Second)
		n := 0
		for _, at := range applied[i:] {
			if at.Before(end) {
				n++
			}
		}
		assert.LessOrEqual(t, n, 10, "window starting at write %d", i)
	}
	// Roughly 10 Hz over 4.2 s.
	assert.GreaterOrEqual(t, len(applied), 35)
}

func TestWriteClassesAreIndependent(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	ctx := context.Background()

	assert.Equal(t, WriteApplied, ch.Write(ctx, "/Tuning/DragCoefficient", 0.5, false))
	assert.Equal(t, WriteApplied, ch.Write(ctx, "/Tuning/BayesianTuner/ShotCount", 1, false))
	assert.Equal(t, WriteDeferred, ch.Write(ctx, "/Tuning/GravityCompensation", 0.1, false))
	assert.Equal(t, WriteDeferred, ch.Write(ctx, "/Tuning/BayesianTuner/ShotThreshold", 10, false))
}

func TestDeferredWriteKeepsLatestValue(t *testing.T) {
	ch, store, clock := newTestChannel(t)
	ctx := context.Background()
	path := "/Tuning/DragCoefficient"

	require.Equal(t, WriteApplied, ch.Write(ctx, path, 0.40, false))
	require.Equal(t, WriteDeferred, ch.Write(ctx, path, 0.41, false))
	require.Equal(t, WriteDeferred, ch.Write(ctx, path, 0.42, false))

	assert.Equal(t, 1, ch.Pending())
	v, ok := ch.PendingValue(path)
	require.True(t, ok)
	assert.Equal(t, 0.42, v)

	stored, _ := store.Value(path)
	assert.Equal(t, 0.40, stored)

	assert.Equal(t, 0, ch.Flush(ctx), "limiter has not refilled yet")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, ch.Flush(ctx))
	assert.Equal(t, 0, ch.Pending())
	stored, _ = store.Value(path)
	assert.Equal(t, 0.42, stored)
}

func TestFlushRotatesPendingPaths(t *testing.T) {
	ch, store, clock := newTestChannel(t)
	ctx := context.Background()
	paths := []string{
		"/Tuning/BayesianTuner/ShotCount",
		"/Tuning/BayesianTuner/ShotThreshold",
		"/Tuning/BayesianTuner/CurrentCoefficient",
	}

	require.Equal(t, WriteApplied, ch.Write(ctx, paths[0], 1, false))
	require.Equal(t, WriteDeferred, ch.Write(ctx, paths[1], 10, false))
	require.Equal(t, WriteDeferred, ch.Write(ctx, paths[2], "Drag", false))

	for range 2 {
		clock.Advance(500 * time.Millisecond)
		assert.Equal(t, 1, ch.Flush(ctx))
	}
	for _, p := range paths {
		_, ok := store.Value(p)
		assert.True(t, ok, "%s should have been flushed", p)
	}
}

func TestForcedWriteBypassesLimiter(t *testing.T) {
	ch, store, _ := newTestChannel(t)
	ctx := context.Background()
	path := "/Tuning/DragCoefficient"

	require.Equal(t, WriteApplied, ch.Write(ctx, path, 0.1, false))
	require.Equal(t, WriteDeferred, ch.Write(ctx, path, 0.2, false))
	for i := range 5 {
		assert.Equal(t, WriteApplied, ch.Write(ctx, path, 0.3+float64(i)/10, true))
	}
	assert.Equal(t, 0, ch.Pending(), "a forced write supersedes the pending value")
	stored, _ := store.Value(path)
	assert.InDelta(t, 0.7, stored, 1e-9)
}

func TestReadCache(t *testing.T) {
	ch, store, clock := newTestChannel(t)
	ctx := context.Background()

	store.Put("/FiringSolver/Distance", 3.5)
	v, ok := ch.ReadFloat(ctx, "/FiringSolver/Distance")
	require.True(t, ok)
	assert.Equal(t, 3.5, v)

	store.Put("/FiringSolver/Distance", 4.0)
	v, _ = ch.ReadFloat(ctx, "/FiringSolver/Distance")
	assert.Equal(t, 3.5, v, "served from cache within TTL")

	clock.Advance(60 * time.Millisecond)
	v, _ = ch.ReadFloat(ctx, "/FiringSolver/Distance")
	assert.Equal(t, 4.0, v)
}

func TestReadTypedValues(t *testing.T) {
	ch, store, _ := newTestChannel(t)
	ctx := context.Background()

	store.Put("/a", 16)
	store.Put("/b", true)
	store.Put("/c", "Drag")

	f, ok := ch.ReadFloat(ctx, "/a")
	assert.True(t, ok)
	assert.Equal(t, 16.0, f)

	b, ok := ch.ReadBool(ctx, "/b")
	assert.True(t, ok)
	assert.True(t, b)

	s, ok := ch.ReadString(ctx, "/c")
	assert.True(t, ok)
	assert.Equal(t, "Drag", s)

	_, ok = ch.ReadBool(ctx, "/c")
	assert.False(t, ok, "wrong type reads as absent")

	_, ok = ch.Read(ctx, "/missing")
	assert.False(t, ok)
}

func TestDisconnectAndBackoff(t *testing.T) {
	ch, store, clock := newTestChannel(t)
	ctx := context.Background()

	store.Put("/x", 1.0)
	store.SetDown(true)
	clock.Advance(time.Second)

	_, ok := ch.Read(ctx, "/x")
	assert.False(t, ok)
	assert.False(t, ch.Connected())
	require.Error(t, ch.LastError())
	assert.ErrorIs(t, ch.LastError(), tunerrors.ErrDisconnected)

	store.SetDown(false)
	clock.Advance(4 * time.Second)
	_, ok = ch.Read(ctx, "/x")
	assert.False(t, ok, "no reconnect before the backoff elapses")

	clock.Advance(time.Second)
	v, ok := ch.Read(ctx, "/x")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	assert.True(t, ch.Connected())
	assert.NoError(t, ch.LastError())
}

func TestForcedWriteQueuedWhileOffline(t *testing.T) {
	ch, store, clock := newTestChannel(t)
	ctx := context.Background()
	path := "/Tuning/DragCoefficient"

	store.SetDown(true)
	assert.Equal(t, WriteQueued, ch.Write(ctx, path, 0.55, true))
	assert.Equal(t, WriteQueued, ch.Write(ctx, path, 0.56, true))
	assert.Equal(t, 1, ch.Pending())

	store.SetDown(false)
	clock.Advance(5 * time.Second)
	require.True(t, ch.Connect(ctx))

	v, ok := store.Value(path)
	require.True(t, ok)
	assert.Equal(t, 0.56, v)
	assert.Equal(t, 0, ch.Pending())
}

func TestDelete(t *testing.T) {
	ch, store, _ := newTestChannel(t)
	ctx := context.Background()
	path := "/Tuning/BayesianTuner/ManualOverrides/Drag"

	store.Put(path, 0.6)
	_, ok := ch.Read(ctx, path)
	require.True(t, ok)

	require.True(t, ch.Delete(ctx, path))
	_, ok = ch.Read(ctx, path)
	assert.False(t, ok, "delete updates the cache")
	_, ok = store.Value(path)
	assert.False(t, ok)
}

func TestWriteResultString(t *testing.T) {
	assert.Equal(t, "applied", WriteApplied.String())
	assert.Equal(t, "deferred", WriteDeferred.String())
	assert.Equal(t, "queued", WriteQueued.String())
	assert.Equal(t, "WriteResult(9)", WriteResult(9).String())
}
