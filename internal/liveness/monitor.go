// Package liveness publishes the local heartbeat and tracks the peer's.
//
// The peer is considered live while its heartbeat value keeps changing:
// it is connected iff the local time since the value last changed is below
// Timeout. Clocks on the two sides are never compared.
package liveness

import (
	"context"
	"time"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
)

// Timeout is the peer staleness limit. It is deliberately not configurable.
const Timeout = config.LivenessTimeout

// ReadWriter is the part of the channel the monitor uses.
type ReadWriter interface {
	ReadFloat(ctx context.Context, path string) (float64, bool)
	Write(ctx context.Context, path string, value any, force bool) channel.WriteResult
}

// State is the connection state derived from the peer heartbeat.
type State struct {
	// PeerTimestamp is the last heartbeat value read from the peer.
	PeerTimestamp float64
	// LastSeen is the local time PeerTimestamp last changed.
	LastSeen  time.Time
	Age       time.Duration
	Connected bool
}

// Monitor is driven by the control loop; it is not safe for concurrent use.
type Monitor struct {
	rw       ReadWriter
	interval time.Duration
	now      func() time.Time

	lastPublish time.Time
	peerValue   float64
	peerSeen    bool
	lastChange  time.Time
	state       State
}

// NewMonitor creates a monitor publishing at least once per interval.
func NewMonitor(rw ReadWriter, interval time.Duration, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{rw: rw, interval: interval, now: now}
}

// Tick publishes the local heartbeat when due, samples the peer's and
// returns the updated state. The heartbeat write is forced, so it is never
// held back by the status class limiter.
func (m *Monitor) Tick(ctx context.Context) State {
	now := m.now()

	if m.lastPublish.IsZero() || now.Sub(m.lastPublish) >= m.interval {
		beat := float64(now.UnixNano()) / float64(time.Second)
		if m.rw.Write(ctx, channel.KeyHeartbeat, beat, true) == channel.WriteApplied {
			m.lastPublish = now
		}
	}

	if v, ok := m.rw.ReadFloat(ctx, channel.KeyPeerHeartbeat); ok {
		if !m.peerSeen || v != m.peerValue {
			m.peerValue = v
			m.peerSeen = true
			m.lastChange = now
		}
	}

	m.state = State{PeerTimestamp: m.peerValue, LastSeen: m.lastChange}
	if !m.lastChange.IsZero() {
		m.state.Age = now.Sub(m.lastChange)
		m.state.Connected = m.state.Age < Timeout
	}
	return m.state
}

// State returns the state computed by the last Tick.
func (m *Monitor) State() State {
	return m.state
}

// Connected reports whether the peer was live at the last Tick.
func (m *Monitor) Connected() bool {
	return m.state.Connected
}
