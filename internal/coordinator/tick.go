package coordinator

import (
	"context"
	"fmt"
	"math"

	"github.com/Iron-Ham/coeftune/internal/channel"
	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
	"github.com/Iron-Ham/coeftune/internal/event"
	"github.com/Iron-Ham/coeftune/internal/interlock"
	"github.com/Iron-Ham/coeftune/internal/journal"
)

// step is one pass of the state machine. A returned error is non-fatal.
func (c *Coordinator) step(ctx context.Context) error {
	c.ch.Flush(ctx)

	live := c.monitor.Tick(ctx)
	c.trackConnectivity(ctx, c.ch.Connected(), live.Connected)

	if c.channelUp && (!c.primed || c.reconfigure) {
		c.prime(ctx)
	}

	ctl := c.readControl(ctx)
	c.enabled = ctl.Enabled

	if !ctl.Enabled {
		c.paused = ""
		c.transition(StateDisabled, "tuner disabled")
		c.publishStatus(ctx)
		return nil
	}

	// Backtracking is honoured even from an exhausted session.
	if ctl.TriggerBacktrack {
		c.resetButton(ctx, channel.KeyTriggerBacktrack)
		_ = c.backtrackLocked(ctl.BacktrackTarget)
	}

	if c.state == StateDisabled {
		if c.session.Exhausted() {
			c.publishStatus(ctx)
			return nil
		}
		c.transition(StateWaiting, "tuner enabled")
	}

	if reason := c.safetyReason(ctx); reason != "" {
		if c.state != StatePaused {
			c.resume = c.state
			c.paused = reason
			c.transition(StatePaused, reason)
		}
		c.publishStatus(ctx)
		return nil
	}
	if c.state == StatePaused {
		reason := c.paused
		c.paused = ""
		c.transition(c.resume, "cleared: "+reason)
	}

	c.syncInterlocks(ctx)
	c.applyManualOverrides(ctx, ctl.ManualOverrides)

	// Shots the remote logged while the session was held are not ours.
	if c.reprime {
		c.validator.Prime(ctx)
		c.reprime = false
	}
	c.pollShot(ctx)

	_, advance := c.triggers()
	switch {
	case ctl.Skip:
		c.resetButton(ctx, channel.KeySkipToNext)
		c.advance(ctx, true, "skip requested")
	case advance.Enabled && c.session.Streak() >= advance.Threshold:
		c.advance(ctx, false, "hit streak reached")
	default:
		autotune, _ := c.triggers()
		if ctl.RunOptimization {
			c.resetButton(ctx, channel.KeyRunOptimization)
			c.optimize(ctx, "manual")
		} else if autotune.Enabled && c.session.BufferLen() >= autotune.Threshold {
			c.optimize(ctx, "autotune")
		}
	}

	c.publishStatus(ctx)
	return nil
}

// prime runs once the channel is first reachable: it skips any shot the
// remote logged before startup, publishes interlock requirements and
// republishes every coefficient value.
func (c *Coordinator) prime(ctx context.Context) {
	if !c.primed {
		c.validator.Prime(ctx)
		c.republishCoefficients(ctx)
		c.primed = true
	}
	c.gates.Configure(ctx, c.cfg.Interlocks.RequireShotLogged, c.cfg.Interlocks.RequireCoefficientsUpdated)
	c.reconfigure = false
}

// republishCoefficients writes every coefficient value without forcing, so
// a freshly restarted store is refilled at the coefficient class rate.
func (c *Coordinator) republishCoefficients(ctx context.Context) {
	for _, coef := range c.session.Coefficients() {
		c.ch.Write(ctx, coef.Key, coef.Value(), false)
	}
}

func (c *Coordinator) trackConnectivity(ctx context.Context, channelUp, peerUp bool) {
	if channelUp != c.channelUp {
		c.emit(event.NewConnectivityEvent(c.now(), "channel", channelUp))
		if channelUp && c.primed {
			c.republishCoefficients(ctx)
		}
	}
	if peerUp != c.peerUp {
		c.emit(event.NewConnectivityEvent(c.now(), "peer", peerUp))
		if peerUp {
			c.log.Info("peer heartbeat live")
		} else {
			c.log.Warn("peer heartbeat lost")
		}
	}
	c.channelUp, c.peerUp = channelUp, peerUp
	switch {
	case !channelUp:
		if err := c.ch.LastError(); err != nil {
			c.lastErr = err
		}
	case !peerUp:
		c.lastErr = tunerrors.ErrPeerStale
	case tunerrors.Is(c.lastErr, tunerrors.ErrDisconnected), tunerrors.Is(c.lastErr, tunerrors.ErrPeerStale):
		c.lastErr = nil
	}
}

func (c *Coordinator) readControl(ctx context.Context) Control {
	ctl := Control{Enabled: c.cfg.Tuner.Enabled, BacktrackTarget: -1}
	if v, ok := c.ch.ReadBool(ctx, channel.KeyTunerEnabled); ok {
		ctl.Enabled = v
	} else if !c.ch.Connected() {
		// An unreachable channel keeps the last observed flag so the
		// session pauses instead of disabling.
		ctl.Enabled = c.enabled
	}
	ctl.RunOptimization, _ = c.ch.ReadBool(ctx, channel.KeyRunOptimization)
	ctl.Skip, _ = c.ch.ReadBool(ctx, channel.KeySkipToNext)
	ctl.TriggerBacktrack, _ = c.ch.ReadBool(ctx, channel.KeyTriggerBacktrack)
	if ctl.TriggerBacktrack {
		if v, ok := c.ch.ReadFloat(ctx, channel.KeyBacktrackTarget); ok && v == math.Trunc(v) {
			ctl.BacktrackTarget = int(v)
		}
	}

	for _, coef := range c.session.Coefficients() {
		if v, ok := c.ch.ReadFloat(ctx, channel.ManualOverrideKey(coef.Name)); ok {
			if ctl.ManualOverrides == nil {
				ctl.ManualOverrides = make(map[string]float64)
			}
			ctl.ManualOverrides[coef.Name] = v
		}
	}
	return ctl
}

// resetButton clears a one-shot control flag after it has been consumed.
func (c *Coordinator) resetButton(ctx context.Context, key string) {
	c.ch.Write(ctx, key, false, true)
}

// safetyReason returns why the session must pause, or "".
func (c *Coordinator) safetyReason(ctx context.Context) string {
	if !c.channelUp {
		return "channel disconnected"
	}
	if !c.peerUp {
		return "peer heartbeat stale"
	}
	if v, ok := c.ch.ReadFloat(ctx, channel.KeyFMSControlData); ok && int64(v)&channel.FMSAttachedBit != 0 {
		return "FMS attached"
	}
	if v, ok := c.ch.ReadBool(ctx, channel.KeyCompetitionMode); ok && v {
		return "competition mode"
	}
	return ""
}

func (c *Coordinator) syncInterlocks(ctx context.Context) {
	c.gates.Sync(ctx)
	for _, r := range c.gates.ResetStale(ctx, c.cfg.Interlocks.ResetTimeout()) {
		c.emit(event.NewInterlockResetEvent(c.now(), r.Gate, r.ClearedFor))
	}
	c.interlockOK = c.gates.OverallAllowed()
}

func (c *Coordinator) applyManualOverrides(ctx context.Context, overrides map[string]float64) {
	for _, coef := range c.session.Coefficients() {
		requested, ok := overrides[coef.Name]
		if !ok {
			continue
		}
		if !c.ch.Delete(ctx, channel.ManualOverrideKey(coef.Name)) {
			// Applied once the key can be removed, so it is never applied twice.
			continue
		}
		if math.IsNaN(requested) || math.IsInf(requested, 0) {
			c.log.Warn("ignoring non-finite manual override", "coefficient", coef.Name)
			continue
		}

		prev := coef.Value()
		value := coef.Set(requested)
		c.ch.Write(ctx, coef.Key, value, true)
		if cur := c.session.Current(); cur != nil && cur.Name == coef.Name {
			c.session.ResetStreak()
		}
		if err := c.logHistory(journal.KindManualChange, coef, func(e *journal.HistoryEntry) {
			e.Previous, e.Value = &prev, &value
		}); err != nil {
			c.log.Error("write history", "error", err)
		}
		c.gates.Satisfy(ctx, interlock.CoefficientsUpdated)
		c.log.WithCoefficient(coef.Name).Info("manual override applied",
			"previous", prev, "value", value, "requested", requested)
		c.emit(event.NewManualChangeEvent(c.now(), coef.Name, prev, value))
	}
}

// pollShot consumes at most one new shot into the current buffer. The
// validator has already logged a rejection; here it becomes the last error
// and counts towards the consecutive rejection limit. A rejected shot still
// satisfies the ShotLogged gate: the remote logged it, it was just unusable.
func (c *Coordinator) pollShot(ctx context.Context) {
	cur := c.session.Current()
	if cur == nil || c.state != StateWaiting {
		return
	}

	rec, ok, err := c.validator.Poll(ctx, c.session.Snapshot())
	if err != nil {
		field := ""
		var verr *tunerrors.ValidationError
		if tunerrors.As(err, &verr) {
			field = verr.Field
		}
		c.emit(event.NewShotRejectedEvent(c.now(), field, err.Error()))
		c.gates.Satisfy(ctx, interlock.ShotLogged)
		c.rejections++
		c.lastErr = err
		c.checkRejections(cur.Name, field, err)
		return
	}
	if !ok {
		return
	}
	c.rejections = 0

	rec = rec.WithCoefficient(cur.Name)
	size := c.session.Append(rec)
	if err := c.journal.LogShot(rec); err != nil {
		c.log.Error("write shot log", "error", err)
	}
	c.gates.Satisfy(ctx, interlock.ShotLogged)
	c.log.WithCoefficient(cur.Name).Debug("shot accepted",
		"timestamp", rec.Timestamp, "hit", rec.Hit, "buffer", size, "streak", c.session.Streak())
	c.emit(event.NewShotAcceptedEvent(c.now(), cur.Name, rec.Hit, size, c.session.Streak()))
}

// checkRejections raises a shot fault once the run of rejected shots
// reaches the configured limit. The fault stays the last error until a shot
// is accepted; the session itself is left alone.
func (c *Coordinator) checkRejections(coefficient, field string, cause error) {
	limit := c.cfg.Tuner.MaxConsecutiveInvalidShots
	if limit <= 0 || c.rejections < limit {
		return
	}
	c.lastErr = tunerrors.NewValidationError(
		fmt.Sprintf("%d consecutive shots rejected", c.rejections), tunerrors.ErrRepeatedRejections,
	).WithField(field)
	if c.rejections > limit {
		return
	}
	c.log.WithCoefficient(coefficient).Error("shot data keeps failing validation",
		"rejections", c.rejections, "last_error", cause)
	c.emit(event.NewShotFaultEvent(c.now(), coefficient, c.rejections, cause.Error()))
}

// optimize folds the current buffer into one optimizer call and publishes
// the result. An empty buffer is a no-op, so repeated triggers without new
// shots never change the value or the history.
func (c *Coordinator) optimize(ctx context.Context, reason string) {
	cur := c.session.Current()
	if cur == nil {
		return
	}
	shots := c.session.Buffer()
	if len(shots) == 0 {
		c.log.WithCoefficient(cur.Name).Debug("optimization skipped, no new shots", "trigger", reason)
		return
	}

	c.transition(StateOptimizing, reason)
	log := c.log.WithCoefficient(cur.Name)

	value, took, err := c.adapter.Suggest(ctx, cur, shots)
	if err != nil {
		c.lastErr = err
		log.Warn("optimization failed, keeping buffer", "error", err, "shots", len(shots))
		c.emit(event.NewOptimizationFailedEvent(c.now(), cur.Name, err, took))
		c.transition(StateWaiting, "optimization failed")
		return
	}

	prev := cur.Value()
	cur.Set(value)
	c.ch.Write(ctx, cur.Key, value, true)
	if err := c.logHistory(journal.KindOptimization, cur, func(e *journal.HistoryEntry) {
		e.Previous, e.Value, e.Shots = &prev, &value, len(shots)
	}); err != nil {
		log.Error("write history", "error", err)
	}
	c.session.ClearBuffer()
	c.session.ResetStreak()
	runs := c.session.RecordOptimization()
	c.gates.Satisfy(ctx, interlock.CoefficientsUpdated)

	log.Info("coefficient optimized", "previous", prev, "value", value, "shots", len(shots), "took", took, "runs", runs)
	c.emit(event.NewOptimizationAppliedEvent(c.now(), cur.Name, prev, value, len(shots), took))
	if c.session.BudgetSpent() {
		c.advance(ctx, false, "optimization budget spent")
		return
	}
	c.transition(StateWaiting, "optimization applied")
}

// advance marks the current coefficient tuned and moves to the next.
func (c *Coordinator) advance(ctx context.Context, manual bool, reason string) {
	c.transition(StateAdvancing, reason)

	tuned, next := c.session.Advance()
	if tuned == nil {
		c.transition(StateDisabled, "all coefficients tuned")
		return
	}
	nextName := ""
	if next != nil {
		nextName = next.Name
	}
	c.log.Info("coefficient tuned", "coefficient", tuned.Name, "value", tuned.Value(), "next", nextName, "manual", manual)
	c.emit(event.NewAdvancedEvent(c.now(), tuned.Name, nextName, manual))

	if next == nil {
		c.transition(StateDisabled, "all coefficients tuned")
		return
	}
	if err := c.logHistory(journal.KindSessionStart, next, nil); err != nil {
		c.log.Error("write history", "error", err)
	}
	c.ch.Write(ctx, next.Key, next.Value(), true)
	c.transition(StateWaiting, "tuning "+next.Name)
}

func (c *Coordinator) backtrackLocked(to int) error {
	in, err := c.session.Backtrack(to, c.now())
	if err != nil {
		c.log.Warn("backtrack ignored", "target", to, "index", c.session.Index(), "error", err)
		c.lastErr = err
		return err
	}

	target := c.session.Current()
	if err := c.logHistory(journal.KindBacktrack, target, func(e *journal.HistoryEntry) {
		e.From, e.To = &in.From, &in.To
	}); err != nil {
		c.log.Error("write history", "error", err)
	}
	c.log.Info("backtracked", "from", in.From, "to", in.To, "coefficient", target.Name)
	c.emit(event.NewBacktrackedEvent(in.At, in.From, in.To, target.Name))

	switch {
	case c.state == StatePaused:
		c.resume = StateWaiting
	case c.enabled:
		c.transition(StateWaiting, fmt.Sprintf("backtracked to %s", target.Name))
	}
	return nil
}

// publishStatus writes the status keys that changed since the last tick.
// Writes are not forced; the status class limiter spreads them out.
func (c *Coordinator) publishStatus(ctx context.Context) {
	autotune, _ := c.triggers()
	current := ""
	if cur := c.session.Current(); cur != nil {
		current = cur.Name
	}
	lastErr := ""
	if c.lastErr != nil {
		lastErr = c.lastErr.Error()
	}

	values := []struct {
		key   string
		value any
	}{
		{channel.KeyRuntimeStatus, string(c.state)},
		{channel.KeyCurrentCoefficient, current},
		{channel.KeyShotCount, float64(c.session.BufferLen())},
		{channel.KeyShotThreshold, float64(autotune.Threshold)},
		{channel.KeyConnected, c.channelUp && c.peerUp},
		{channel.KeyLastError, lastErr},
	}
	for _, v := range values {
		if prev, ok := c.lastPublished[v.key]; ok && prev == v.value {
			continue
		}
		if c.ch.Write(ctx, v.key, v.value, false) != channel.WriteQueued {
			c.lastPublished[v.key] = v.value
		}
	}
}
