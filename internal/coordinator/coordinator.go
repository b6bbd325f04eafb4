// Package coordinator runs the tuning session state machine.
//
// A single cooperative control loop calls Tick. Each tick reads operator
// control flags, the peer heartbeat and any new shot from the channel,
// advances the session, and publishes status. All session state is owned
// by the coordinator; observers read the Status snapshot and influence the
// session only through channel flags.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
	"github.com/Iron-Ham/coeftune/internal/event"
	"github.com/Iron-Ham/coeftune/internal/interlock"
	"github.com/Iron-Ham/coeftune/internal/journal"
	"github.com/Iron-Ham/coeftune/internal/liveness"
	"github.com/Iron-Ham/coeftune/internal/logging"
	"github.com/Iron-Ham/coeftune/internal/metrics"
	"github.com/Iron-Ham/coeftune/internal/optimizer"
	"github.com/Iron-Ham/coeftune/internal/shot"
	"github.com/Iron-Ham/coeftune/internal/tuning"
)

// Deps are the coordinator's collaborators. Channel is required; the rest
// default when nil.
type Deps struct {
	Channel *channel.Channel
	// Optimizer defaults to a StepSearch seeded from the config.
	Optimizer optimizer.Optimizer
	Bus       *event.Bus
	Logger    *logging.Logger
	Now       func() time.Time
}

// Coordinator is safe for concurrent use; Tick, Backtrack and ApplyConfig
// serialize on an internal lock and Status is lock-free.
type Coordinator struct {
	mu  sync.Mutex
	cfg *config.Config

	ch        *channel.Channel
	monitor   *liveness.Monitor
	validator *shot.Validator
	gates     *interlock.Gates
	adapter   *optimizer.Adapter
	journal   *journal.Journal
	bus       *event.Bus
	log       *logging.Logger
	now       func() time.Time

	session *tuning.Session
	state   State
	resume  State
	paused  string
	enabled bool
	lastErr error

	primed        bool
	reprime       bool
	reconfigure   bool
	rejections    int
	channelUp     bool
	peerUp        bool
	interlockOK   bool
	lastPublished map[string]any
	closeOnce     sync.Once
	status        atomic.Pointer[Status]
}

// New builds a coordinator and opens its journal. Invalid configuration is
// reported as a ConfigurationError.
func New(cfg *config.Config, deps Deps) (*Coordinator, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, tunerrors.NewConfigurationError(errs[0].Message, config.ValidationErrors(errs)).
			WithField(errs[0].Field)
	}
	if deps.Channel == nil {
		return nil, tunerrors.NewConfigurationError("no channel", nil).WithField("channel")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	if deps.Optimizer == nil {
		deps.Optimizer = optimizer.NewStepSearch(cfg.Optimizer.Seed)
	}

	started := deps.Now()
	session, err := tuning.NewSession(uuid.NewString(), started, specsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	log := deps.Logger.WithSession(session.ID())
	j, err := journal.Open(cfg.Journal.Directory, cfg.Journal.Prefix, started, cfg.Journal.ShotFlushEvery)
	if err != nil {
		return nil, tunerrors.NewConfigurationError("cannot open journal", err).WithField("journal.directory")
	}

	c := &Coordinator{
		cfg:           cfg,
		ch:            deps.Channel,
		monitor:       liveness.NewMonitor(deps.Channel, cfg.Liveness.PublishInterval(), deps.Now),
		validator:     shot.NewValidator(deps.Channel, shot.LimitsFromConfig(cfg.Limits), log),
		gates:         interlock.NewGates(deps.Channel, deps.Now, log),
		adapter:       optimizer.NewAdapter(deps.Optimizer, cfg.Optimizer.Reward, deps.Now),
		journal:       j,
		bus:           deps.Bus,
		log:           log.WithComponent("coordinator"),
		now:           deps.Now,
		session:       session,
		state:         StateDisabled,
		enabled:       cfg.Tuner.Enabled,
		interlockOK:   true,
		lastPublished: make(map[string]any),
	}

	if err := c.logHistory(journal.KindSessionStart, session.Current(), nil); err != nil {
		_ = j.Close()
		return nil, tunerrors.NewConfigurationError("cannot write journal", err).WithField("journal.directory")
	}
	c.log.Info("session created",
		"coefficients", session.Len(),
		"shots_log", j.ShotsPath(),
		"history_log", j.HistoryPath(),
	)
	c.publishSnapshot()
	return c, nil
}

func specsFromConfig(cfg *config.Config) []tuning.Spec {
	order := cfg.EnabledOrder()
	specs := make([]tuning.Spec, 0, len(order))
	for _, cc := range order {
		specs = append(specs, tuning.Spec{
			Name:        cc.Name,
			Key:         cc.ChannelKey(),
			Default:     cc.Default,
			Min:         cc.Min,
			Max:         cc.Max,
			Integer:     cc.IsInteger,
			InitialStep: cc.InitialStepSize,
			StepDecay:   cc.StepDecayRate,
			Autotune:    override(cc.Autotune),
			AutoAdvance: override(cc.AutoAdvance),

			MaxOptimizations: cc.OptimizationBudget(cfg.Tuner.MaxOptimizations),
		})
	}
	return specs
}

func override(o *config.OverrideConfig) *tuning.Override {
	if o == nil {
		return nil
	}
	return &tuning.Override{Enabled: o.Enabled, Threshold: o.ShotThreshold}
}

// Session returns the session ID.
func (c *Coordinator) Session() string {
	return c.session.ID()
}

// Status returns the latest snapshot.
func (c *Coordinator) Status() Status {
	return *c.status.Load()
}

// JournalPaths returns the shot and history log paths.
func (c *Coordinator) JournalPaths() (shots, history string) {
	return c.journal.ShotsPath(), c.journal.HistoryPath()
}

// ApplyConfig takes the reloadable settings from cfg: the enable default,
// trigger settings, interlock requirements and loop cadence. Coefficients
// and channel settings are fixed for the life of the session.
func (c *Coordinator) ApplyConfig(cfg *config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.cfg
	next.Tuner = cfg.Tuner
	next.Autotune = cfg.Autotune
	next.AutoAdvance = cfg.AutoAdvance
	next.Interlocks = cfg.Interlocks
	next.Loop = cfg.Loop
	c.cfg = &next
	c.reconfigure = true
	c.log.Info("configuration reloaded",
		"enabled", next.Tuner.Enabled,
		"autotune", next.Autotune.Enabled,
		"auto_advance", next.AutoAdvance.Enabled,
	)
}

// Run ticks until ctx is done, sleeping the interval each tick returns.
// On exit the journal is flushed.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("control loop started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("control loop stopped")
			if err := c.journal.Flush(); err != nil {
				c.log.Error("flush journal", "error", err)
			}
			return nil
		case <-timer.C:
			timer.Reset(c.Tick(ctx))
		}
	}
}

// Close closes the journal and the channel. It is idempotent.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = errors.Join(c.journal.Close(), c.ch.Close())
	})
	return err
}

// Tick runs one control step and returns how long to wait before the next.
// It never panics: a panic inside the step is recovered, logged and
// surfaced in Status.LastError.
func (c *Coordinator) Tick(ctx context.Context) (next time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now()
	metrics.CoordinatorTicksTotal.Inc()
	active, idle, onError := c.cfg.Loop.Interval()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("tick panicked", "panic", r, "stack", string(debug.Stack()))
			c.lastErr = fmt.Errorf("tick panicked: %v", r)
			metrics.CoordinatorTickErrors.Inc()
			switch {
			case c.state != StateOptimizing && c.state != StateAdvancing:
			case c.session.Exhausted():
				c.transition(StateDisabled, "recovered from panic")
			default:
				c.transition(StateWaiting, "recovered from panic")
			}
			next = onError
		}
		metrics.CoordinatorTickLatency.Observe(c.now().Sub(start).Seconds())
		c.publishSnapshot()
	}()

	if err := c.step(ctx); err != nil {
		c.lastErr = err
		metrics.CoordinatorTickErrors.Inc()
		c.log.Warn("tick failed", "error", err, "severity", tunerrors.GetSeverity(err).String())
		return onError
	}
	if c.state.IsActive() {
		return active
	}
	return idle
}

// Backtrack rewinds the tuning order to index to. The target must be
// strictly earlier than the current index; otherwise a warning is logged
// and nothing changes.
func (c *Coordinator) Backtrack(to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.backtrackLocked(to)
	c.publishSnapshot()
	return err
}

func (c *Coordinator) emit(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func (c *Coordinator) transition(to State, reason string) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	if to == StateWaiting && (from == StatePaused || from == StateDisabled) {
		c.reprime = true
	}
	c.log.Info("state changed", "from", from, "to", to, "reason", reason)
	c.emit(event.NewStateChangedEvent(c.now(), c.session.ID(), string(from), string(to), reason))
}

// logHistory appends a history entry about coef. value is the new value
// for OPTIMIZATION and MANUAL_CHANGE entries.
func (c *Coordinator) logHistory(kind journal.Kind, coef *tuning.Coefficient, mutate func(*journal.HistoryEntry)) error {
	e := journal.HistoryEntry{
		Kind:         kind,
		Time:         c.now(),
		SessionID:    c.session.ID(),
		Coefficients: c.session.Snapshot(),
	}
	if coef != nil {
		e.Coefficient = coef.Name
	}
	if mutate != nil {
		mutate(&e)
	}
	return c.journal.LogHistory(e)
}

func (c *Coordinator) publishSnapshot() {
	autotune, _ := c.triggers()
	st := &Status{
		SessionID:        c.session.ID(),
		State:            c.state,
		PausedReason:     c.paused,
		Index:            c.session.Index(),
		Total:            c.session.Len(),
		ShotCount:        c.session.BufferLen(),
		Threshold:        autotune.Threshold,
		AutotuneEnabled:  autotune.Enabled,
		Streak:           c.session.Streak(),
		Optimizations:    c.session.Optimizations(),
		Rejections:       c.rejections,
		Connected:        c.channelUp && c.peerUp,
		ChannelConnected: c.channelUp,
		PeerConnected:    c.peerUp,
		InterlockAllowed: c.interlockOK,
		Coefficients:     c.session.Snapshot(),
		UpdatedAt:        c.now(),
	}
	if cur := c.session.Current(); cur != nil {
		st.CurrentCoefficient = cur.Name
		st.OptimizationBudget = cur.MaxOptimizations
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	for _, coef := range c.session.Coefficients() {
		if c.session.IsTuned(coef.Name) {
			st.Tuned = append(st.Tuned, coef.Name)
		}
	}
	c.status.Store(st)
}

// triggers resolves the autotune and auto-advance settings for the current
// coefficient. An exhausted session reports the global settings.
func (c *Coordinator) triggers() (autotune, advance tuning.Trigger) {
	var localTune, localAdvance *tuning.Override
	if cur := c.session.Current(); cur != nil {
		localTune, localAdvance = cur.Autotune, cur.AutoAdvance
	}
	autotune = tuning.Resolve(tuning.Global{
		Enabled:     c.cfg.Autotune.Enabled,
		Threshold:   c.cfg.Autotune.ShotThreshold,
		ForceGlobal: c.cfg.Autotune.ForceGlobal,
	}, localTune)
	advance = tuning.Resolve(tuning.Global{
		Enabled:     c.cfg.AutoAdvance.Enabled,
		Threshold:   c.cfg.AutoAdvance.ShotThreshold,
		ForceGlobal: c.cfg.AutoAdvance.ForceGlobal,
	}, localAdvance)
	return autotune, advance
}
