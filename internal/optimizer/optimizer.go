// Package optimizer adapts a suggestion capability to the coordinator.
//
// The numeric method lives behind the Optimizer interface. The Adapter
// turns buffered shots into observations, calls Suggest, and guarantees the
// returned value is finite and clamped to the coefficient's bounds.
package optimizer

import (
	"context"
	"math"
	"sync"
	"time"

	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
	"github.com/Iron-Ham/coeftune/internal/shot"
	"github.com/Iron-Ham/coeftune/internal/tuning"
)

// Reward modes.
const (
	RewardHit      = "hit"
	RewardAccuracy = "accuracy"
)

// Bounds describes the coefficient being optimized.
type Bounds struct {
	Name        string
	Min         float64
	Max         float64
	Integer     bool
	Current     float64
	InitialStep float64
	StepDecay   float64
}

// BoundsOf returns the bounds of c at its current value.
func BoundsOf(c *tuning.Coefficient) Bounds {
	return Bounds{
		Name:        c.Name,
		Min:         c.Min,
		Max:         c.Max,
		Integer:     c.Integer,
		Current:     c.Value(),
		InitialStep: c.InitialStep,
		StepDecay:   c.StepDecay,
	}
}

// Observation is one (value, reward) pair.
type Observation struct {
	Value  float64
	Reward float64
}

// Optimizer suggests the next value to try.
type Optimizer interface {
	Suggest(ctx context.Context, b Bounds, obs []Observation) (float64, error)
}

// Func adapts a plain function to Optimizer.
type Func func(ctx context.Context, b Bounds, obs []Observation) (float64, error)

func (f Func) Suggest(ctx context.Context, b Bounds, obs []Observation) (float64, error) {
	return f(ctx, b, obs)
}

// Observations converts shots to observations. The value is the
// coefficient's value recorded with the shot, falling back to current.
func Observations(name string, current float64, shots []shot.Record, reward string) []Observation {
	useAccuracy := reward == RewardAccuracy
	obs := make([]Observation, 0, len(shots))
	for _, s := range shots {
		v, ok := s.ValueOf(name)
		if !ok {
			v = current
		}
		obs = append(obs, Observation{Value: v, Reward: s.Reward(useAccuracy)})
	}
	return obs
}

// Stats is per-coefficient bookkeeping.
type Stats struct {
	Calls          int
	Failures       int
	LastSuggestion float64
	LastDuration   time.Duration
}

// Adapter wraps an Optimizer with validation, clamping and bookkeeping.
type Adapter struct {
	opt    Optimizer
	reward string
	now    func() time.Time

	mu    sync.Mutex
	stats map[string]Stats
}

// NewAdapter creates an adapter. reward is RewardHit or RewardAccuracy.
func NewAdapter(opt Optimizer, reward string, now func() time.Time) *Adapter {
	if now == nil {
		now = time.Now
	}
	if reward == "" {
		reward = RewardHit
	}
	return &Adapter{opt: opt, reward: reward, now: now, stats: make(map[string]Stats)}
}

// Suggest asks the optimizer for a new value for c given its buffered shots.
// The result is clamped into c's bounds and rounded for integer
// coefficients. Any failure is returned as an OptimizerError and the
// coefficient is left untouched.
func (a *Adapter) Suggest(ctx context.Context, c *tuning.Coefficient, shots []shot.Record) (float64, time.Duration, error) {
	obs := Observations(c.Name, c.Value(), shots, a.reward)
	if len(obs) == 0 {
		return 0, 0, tunerrors.NewOptimizerError("nothing to optimize", tunerrors.ErrNoObservations).
			WithCoefficient(c.Name)
	}

	start := a.now()
	v, err := a.opt.Suggest(ctx, BoundsOf(c), obs)
	took := a.now().Sub(start)

	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = tunerrors.ErrBadSuggestion
	}
	if err != nil {
		a.record(c.Name, 0, took, false)
		return 0, took, tunerrors.NewOptimizerError("suggest failed", err).
			WithCoefficient(c.Name).
			WithObservations(len(obs))
	}

	v = c.Clamp(v)
	a.record(c.Name, v, took, true)
	return v, took, nil
}

func (a *Adapter) record(name string, v float64, took time.Duration, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats[name]
	s.Calls++
	s.LastDuration = took
	if ok {
		s.LastSuggestion = v
	} else {
		s.Failures++
	}
	a.stats[name] = s
}

// Stats returns the bookkeeping for name.
func (a *Adapter) Stats(name string) Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats[name]
}
