package interlock

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/coeftune/internal/channel"
)

type fakeRW struct {
	values map[string]any
	writes int
}

func newFakeRW() *fakeRW { return &fakeRW{values: map[string]any{}} }

func (f *fakeRW) ReadBool(_ context.Context, path string) (bool, bool) {
	b, ok := f.values[path].(bool)
	return b, ok
}

func (f *fakeRW) Write(_ context.Context, path string, value any, force bool) channel.WriteResult {
	f.values[path] = value
	f.writes++
	return channel.WriteApplied
}

func TestOverallAllowed(t *testing.T) {
	tests := []struct {
		name        string
		shotReq     bool
		shotSat     bool
		coefReq     bool
		coefSat     bool
		wantAllowed bool
	}{
		{name: "nothing required", shotSat: false, coefSat: false, wantAllowed: true},
		{name: "required and satisfied", shotReq: true, shotSat: true, coefReq: true, coefSat: true, wantAllowed: true},
		{name: "one required unsatisfied", shotReq: true, shotSat: false, coefSat: true, wantAllowed: false},
		{name: "unrequired unsatisfied ignored", shotReq: true, shotSat: true, coefSat: false, wantAllowed: true},
		{name: "both required both unsatisfied", shotReq: true, coefReq: true, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGates(newFakeRW(), nil, nil)
			shot, coef := g.Gate(ShotLogged), g.Gate(CoefficientsUpdated)
			shot.Require(tt.shotReq)
			shot.SetSatisfied(tt.shotSat)
			coef.Require(tt.coefReq)
			coef.SetSatisfied(tt.coefSat)

			if got := g.OverallAllowed(); got != tt.wantAllowed {
				t.Errorf("OverallAllowed() = %v, want %v", got, tt.wantAllowed)
			}
		})
	}
}

func TestConfigurePublishesFlags(t *testing.T) {
	rw := newFakeRW()
	g := NewGates(rw, nil, nil)
	g.Configure(context.Background(), true, false)

	if rw.values["/FiringSolver/Interlock/RequireShotLogged"] != true {
		t.Error("RequireShotLogged should be published as true")
	}
	if rw.values["/FiringSolver/Interlock/RequireCoefficientsUpdated"] != false {
		t.Error("RequireCoefficientsUpdated should be published as false")
	}
	if rw.values["/FiringSolver/Interlock/ShotLogged"] != true {
		t.Error("gates start satisfied")
	}
	if !g.Gate(ShotLogged).IsRequired() || g.Gate(CoefficientsUpdated).IsRequired() {
		t.Error("Configure() should set the required flags locally")
	}
}

func TestSyncAndSatisfy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rw := newFakeRW()
	g := NewGates(rw, func() time.Time { return now }, nil)
	ctx := context.Background()
	g.Configure(ctx, true, true)

	// The remote clears ShotLogged before shooting.
	rw.values["/FiringSolver/Interlock/ShotLogged"] = false
	g.Sync(ctx)

	gate := g.Gate(ShotLogged)
	if gate.IsSatisfied() {
		t.Fatal("Sync() should pick up the remote clear")
	}
	if !gate.ClearedAt().Equal(now) {
		t.Errorf("ClearedAt() = %v, want %v", gate.ClearedAt(), now)
	}
	if g.OverallAllowed() {
		t.Error("OverallAllowed() should be false while a required gate is cleared")
	}

	g.Satisfy(ctx, ShotLogged)
	if !gate.IsSatisfied() || !g.OverallAllowed() {
		t.Error("Satisfy() should restore the gate")
	}
	if rw.values["/FiringSolver/Interlock/ShotLogged"] != true {
		t.Error("Satisfy() should publish the flag")
	}
	if !gate.ClearedAt().IsZero() {
		t.Error("ClearedAt() should reset once satisfied")
	}

	g.Satisfy(ctx, "Unknown")
}

func TestResetStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rw := newFakeRW()
	g := NewGates(rw, func() time.Time { return now }, nil)
	ctx := context.Background()
	g.Configure(ctx, true, false)

	rw.values["/FiringSolver/Interlock/ShotLogged"] = false
	rw.values["/FiringSolver/Interlock/CoefficientsUpdated"] = false
	g.Sync(ctx)

	now = now.Add(30 * time.Second)
	if resets := g.ResetStale(ctx, 30*time.Second); len(resets) != 0 {
		t.Fatalf("ResetStale() at the timeout = %v, want none", resets)
	}

	now = now.Add(time.Millisecond)
	if resets := g.ResetStale(ctx, 0); resets != nil {
		t.Errorf("zero timeout should disable the reset, got %v", resets)
	}

	resets := g.ResetStale(ctx, 30*time.Second)
	if len(resets) != 1 || resets[0].Gate != ShotLogged {
		t.Fatalf("ResetStale() = %v, want ShotLogged only", resets)
	}
	if resets[0].ClearedFor != 30*time.Second+time.Millisecond {
		t.Errorf("ClearedFor = %v", resets[0].ClearedFor)
	}
	if !g.Gate(ShotLogged).IsSatisfied() {
		t.Error("stale gate should be satisfied after reset")
	}
	if g.Gate(CoefficientsUpdated).IsSatisfied() {
		t.Error("unrequired gate should be left alone")
	}
}
