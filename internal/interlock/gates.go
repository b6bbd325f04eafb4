// Package interlock implements the handshake flags that keep this process
// and the remote in step.
//
// Each gate has a required flag and a satisfied flag. The remote, as
// consumer, clears a required gate before acting and waits for it to turn
// true again; this process, as producer, sets it once the condition holds
// (a shot was logged, new coefficients were written).
package interlock

import (
	"context"
	"time"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/logging"
)

// Gate names.
const (
	ShotLogged          = "ShotLogged"
	CoefficientsUpdated = "CoefficientsUpdated"
)

// ReadWriter is the part of the channel the gates use.
type ReadWriter interface {
	ReadBool(ctx context.Context, path string) (bool, bool)
	Write(ctx context.Context, path string, value any, force bool) channel.WriteResult
}

// Gate is a single interlock flag pair.
type Gate struct {
	name      string
	required  bool
	satisfied bool
	clearedAt time.Time
}

// Name returns the gate name.
func (g *Gate) Name() string { return g.name }

// Require sets whether the gate takes part in OverallAllowed.
func (g *Gate) Require(required bool) { g.required = required }

// IsRequired reports whether the gate is required.
func (g *Gate) IsRequired() bool { return g.required }

// IsSatisfied reports whether the gate is satisfied.
func (g *Gate) IsSatisfied() bool { return g.satisfied }

// SetSatisfied sets the satisfied flag locally.
func (g *Gate) SetSatisfied(satisfied bool) { g.satisfied = satisfied }

// ClearedAt returns when the remote last cleared the gate, or the zero time
// while it is satisfied.
func (g *Gate) ClearedAt() time.Time { return g.clearedAt }

func (g *Gate) requireKey() string   { return channel.KeyInterlockRoot + "Require" + g.name }
func (g *Gate) satisfiedKey() string { return channel.KeyInterlockRoot + g.name }

// Reset describes a gate re-satisfied by ResetStale.
type Reset struct {
	Gate       string
	ClearedFor time.Duration
}

// Gates holds both interlock gates.
type Gates struct {
	rw    ReadWriter
	now   func() time.Time
	log   *logging.Logger
	gates []*Gate
}

// NewGates creates both gates, unrequired and satisfied.
func NewGates(rw ReadWriter, now func() time.Time, log *logging.Logger) *Gates {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logging.NopLogger()
	}
	return &Gates{
		rw:  rw,
		now: now,
		log: log.WithComponent("interlock"),
		gates: []*Gate{
			{name: ShotLogged, satisfied: true},
			{name: CoefficientsUpdated, satisfied: true},
		},
	}
}

// Gate returns the named gate, or nil.
func (g *Gates) Gate(name string) *Gate {
	for _, gate := range g.gates {
		if gate.name == name {
			return gate
		}
	}
	return nil
}

// All returns both gates.
func (g *Gates) All() []*Gate {
	return append([]*Gate(nil), g.gates...)
}

// OverallAllowed is true iff no required gate is unsatisfied.
func (g *Gates) OverallAllowed() bool {
	for _, gate := range g.gates {
		if gate.required && !gate.satisfied {
			return false
		}
	}
	return true
}

// Configure sets the required flags and publishes them, together with the
// current satisfied flags, so the remote knows which handshakes to honour.
func (g *Gates) Configure(ctx context.Context, requireShotLogged, requireCoefficientsUpdated bool) {
	g.Gate(ShotLogged).Require(requireShotLogged)
	g.Gate(CoefficientsUpdated).Require(requireCoefficientsUpdated)
	for _, gate := range g.gates {
		g.rw.Write(ctx, gate.requireKey(), gate.required, true)
		g.rw.Write(ctx, gate.satisfiedKey(), gate.satisfied, true)
	}
}

// Sync picks up gates the remote has cleared (or set) since the last call.
func (g *Gates) Sync(ctx context.Context) {
	for _, gate := range g.gates {
		remote, ok := g.rw.ReadBool(ctx, gate.satisfiedKey())
		if !ok || remote == gate.satisfied {
			continue
		}
		gate.satisfied = remote
		if remote {
			gate.clearedAt = time.Time{}
		} else {
			gate.clearedAt = g.now()
			g.log.Debug("gate cleared by remote", "gate", gate.name)
		}
	}
}

// Satisfy marks the named gate satisfied and publishes it. Writes are
// forced so the remote is never left waiting on the limiter.
func (g *Gates) Satisfy(ctx context.Context, name string) {
	gate := g.Gate(name)
	if gate == nil {
		return
	}
	gate.satisfied = true
	gate.clearedAt = time.Time{}
	g.rw.Write(ctx, gate.satisfiedKey(), true, true)
}

// ResetStale re-satisfies every required gate that has stayed cleared for
// longer than timeout and returns what it reset. A zero timeout disables
// the reset.
func (g *Gates) ResetStale(ctx context.Context, timeout time.Duration) []Reset {
	if timeout <= 0 {
		return nil
	}
	now := g.now()
	var resets []Reset
	for _, gate := range g.gates {
		if !gate.required || gate.satisfied || gate.clearedAt.IsZero() {
			continue
		}
		clearedFor := now.Sub(gate.clearedAt)
		if clearedFor <= timeout {
			continue
		}
		g.log.Warn("interlock gate stuck, resetting", "gate", gate.name, "cleared_for", clearedFor)
		g.Satisfy(ctx, gate.name)
		resets = append(resets, Reset{Gate: gate.name, ClearedFor: clearedFor})
	}
	return resets
}
