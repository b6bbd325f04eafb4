// Package tuning holds the tuning session model: the ordered coefficients,
// their shot buffers, the tuned set and the backtrack interaction log. It
// also hosts the pure trigger resolver shared by autotune and auto-advance.
//
// A Session is owned by exactly one goroutine (the coordinator's control
// loop) and is not safe for concurrent use.
package tuning

import (
	"fmt"
	"math"

	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
)

// Spec describes a coefficient as configured. It is immutable for the life
// of a session.
type Spec struct {
	Name    string
	Key     string
	Default float64
	Min     float64
	Max     float64
	Integer bool

	InitialStep float64
	StepDecay   float64

	// MaxOptimizations is the optimization budget; 0 means unlimited.
	MaxOptimizations int

	// Autotune and AutoAdvance are optional local trigger overrides.
	Autotune    *Override
	AutoAdvance *Override
}

// Coefficient is a tunable parameter with a current value that always lies
// within [Min, Max].
type Coefficient struct {
	Spec
	value float64
}

// NewCoefficient validates the spec and returns a coefficient holding its
// clamped default.
func NewCoefficient(s Spec) (*Coefficient, error) {
	if s.Name == "" {
		return nil, tunerrors.NewConfigurationError("coefficient has no name", tunerrors.ErrInvalidBounds)
	}
	if !finite(s.Min) || !finite(s.Max) || s.Min >= s.Max {
		return nil, tunerrors.NewConfigurationError(
			fmt.Sprintf("min %v must be below max %v", s.Min, s.Max),
			tunerrors.ErrInvalidBounds,
		).WithCoefficient(s.Name)
	}
	if !finite(s.Default) {
		return nil, tunerrors.NewConfigurationError("default is not finite", tunerrors.ErrInvalidBounds).
			WithCoefficient(s.Name)
	}
	if s.Key == "" {
		s.Key = "/Tuning/" + s.Name
	}
	c := &Coefficient{Spec: s}
	c.value = c.Clamp(s.Default)
	return c, nil
}

// Value returns the current value.
func (c *Coefficient) Value() float64 {
	return c.value
}

// Clamp limits v to [Min, Max], rounding to the nearest whole number first
// for integer coefficients. A non-finite v clamps to the current value.
func (c *Coefficient) Clamp(v float64) float64 {
	if !finite(v) {
		return c.value
	}
	if c.Integer {
		v = math.Round(v)
		// Rounding can step outside a fractional bound.
		lo, hi := math.Ceil(c.Min), math.Floor(c.Max)
		if lo <= hi {
			return math.Max(lo, math.Min(hi, v))
		}
	}
	return math.Max(c.Min, math.Min(c.Max, v))
}

// Set clamps v and stores it, returning the stored value.
func (c *Coefficient) Set(v float64) float64 {
	c.value = c.Clamp(v)
	return c.value
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
