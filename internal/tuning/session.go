package tuning

import (
	"fmt"
	"time"

	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
	"github.com/Iron-Ham/coeftune/internal/shot"
)

// Interaction records an operator backtrack from one tuning-order index to
// an earlier one.
type Interaction struct {
	From int       `json:"from"`
	To   int       `json:"to"`
	At   time.Time `json:"at"`
}

// Session is one run through the tuning order. Exactly one coefficient is
// current until the order is exhausted.
type Session struct {
	id      string
	started time.Time

	coefs  []*Coefficient
	byName map[string]int
	index  int

	buffers       map[string][]shot.Record
	optimizations map[string]int
	streak        int
	tuned        map[string]bool
	interactions []Interaction
}

// NewSession builds a session over specs in tuning order. It fails with a
// ConfigurationError when the order is empty, a name repeats or a
// coefficient has invalid bounds.
func NewSession(id string, started time.Time, specs []Spec) (*Session, error) {
	if len(specs) == 0 {
		return nil, tunerrors.NewConfigurationError("no coefficients to tune", tunerrors.ErrEmptyTuningOrder).
			WithField("tuning_order")
	}

	s := &Session{
		id:      id,
		started: started,
		byName:  make(map[string]int, len(specs)),
		buffers:       make(map[string][]shot.Record, len(specs)),
		optimizations: make(map[string]int, len(specs)),
		tuned:         make(map[string]bool, len(specs)),
	}
	for i, spec := range specs {
		if _, dup := s.byName[spec.Name]; dup {
			return nil, tunerrors.NewConfigurationError(
				fmt.Sprintf("%q appears more than once", spec.Name),
				tunerrors.ErrDuplicateCoefficient,
			).WithCoefficient(spec.Name)
		}
		c, err := NewCoefficient(spec)
		if err != nil {
			return nil, err
		}
		s.coefs = append(s.coefs, c)
		s.byName[spec.Name] = i
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Started returns when the session was created.
func (s *Session) Started() time.Time { return s.started }

// Len returns the number of coefficients in the tuning order.
func (s *Session) Len() int { return len(s.coefs) }

// Index returns the current position in the tuning order. It equals Len
// once every coefficient has been tuned.
func (s *Session) Index() int { return s.index }

// Exhausted reports whether the tuning order has been completed.
func (s *Session) Exhausted() bool { return s.index >= len(s.coefs) }

// Current returns the coefficient being tuned, or nil when exhausted.
func (s *Session) Current() *Coefficient {
	if s.Exhausted() {
		return nil
	}
	return s.coefs[s.index]
}

// At returns the coefficient at tuning-order position i.
func (s *Session) At(i int) *Coefficient {
	if i < 0 || i >= len(s.coefs) {
		return nil
	}
	return s.coefs[i]
}

// Coefficient looks a coefficient up by name.
func (s *Session) Coefficient(name string) (*Coefficient, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.coefs[i], true
}

// Coefficients returns the coefficients in tuning order.
func (s *Session) Coefficients() []*Coefficient {
	out := make([]*Coefficient, len(s.coefs))
	copy(out, s.coefs)
	return out
}

// Snapshot returns every coefficient's current value.
func (s *Session) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(s.coefs))
	for _, c := range s.coefs {
		out[c.Name] = c.value
	}
	return out
}

// Append adds rec to the current coefficient's buffer and updates the hit
// streak: a hit extends it, a miss resets it to zero. It returns the new
// buffer size. Appending to an exhausted session is a no-op.
func (s *Session) Append(rec shot.Record) int {
	cur := s.Current()
	if cur == nil {
		return 0
	}
	s.buffers[cur.Name] = append(s.buffers[cur.Name], rec)
	if rec.Hit {
		s.streak++
	} else {
		s.streak = 0
	}
	return len(s.buffers[cur.Name])
}

// Buffer returns a copy of the current coefficient's buffered shots.
func (s *Session) Buffer() []shot.Record {
	cur := s.Current()
	if cur == nil {
		return nil
	}
	buf := s.buffers[cur.Name]
	out := make([]shot.Record, len(buf))
	copy(out, buf)
	return out
}

// BufferLen returns the current buffer size.
func (s *Session) BufferLen() int {
	cur := s.Current()
	if cur == nil {
		return 0
	}
	return len(s.buffers[cur.Name])
}

// ClearBuffer empties the current coefficient's buffer.
func (s *Session) ClearBuffer() {
	if cur := s.Current(); cur != nil {
		delete(s.buffers, cur.Name)
	}
}

// RecordOptimization counts an applied optimization against the current
// coefficient and returns its new total.
func (s *Session) RecordOptimization() int {
	cur := s.Current()
	if cur == nil {
		return 0
	}
	s.optimizations[cur.Name]++
	return s.optimizations[cur.Name]
}

// Optimizations returns how many optimizations the current coefficient has
// had since it last became current through a backtrack or session start.
func (s *Session) Optimizations() int {
	cur := s.Current()
	if cur == nil {
		return 0
	}
	return s.optimizations[cur.Name]
}

// BudgetSpent reports whether the current coefficient has used its whole
// optimization budget.
func (s *Session) BudgetSpent() bool {
	cur := s.Current()
	return cur != nil && cur.MaxOptimizations > 0 && s.optimizations[cur.Name] >= cur.MaxOptimizations
}

// Streak returns the number of consecutive hits at the current value.
func (s *Session) Streak() int { return s.streak }

// ResetStreak zeroes the hit streak, used when the current value changes.
func (s *Session) ResetStreak() { s.streak = 0 }

// IsTuned reports whether name has been marked tuned.
func (s *Session) IsTuned(name string) bool { return s.tuned[name] }

// TunedCount returns how many coefficients are marked tuned.
func (s *Session) TunedCount() int { return len(s.tuned) }

// Advance marks the current coefficient tuned and moves to the next one.
// It returns the coefficient that was tuned and the new current
// coefficient, which is nil when the order is exhausted.
func (s *Session) Advance() (tuned, next *Coefficient) {
	tuned = s.Current()
	if tuned == nil {
		return nil, nil
	}
	s.tuned[tuned.Name] = true
	delete(s.buffers, tuned.Name)
	s.streak = 0
	s.index++
	return tuned, s.Current()
}

// Backtrack moves back to position to, which must be strictly earlier than
// the current index. The target's buffer and optimization count are
// cleared and it is no longer considered tuned. The interaction is recorded and returned.
func (s *Session) Backtrack(to int, at time.Time) (Interaction, error) {
	if to < 0 || to >= s.index || to >= len(s.coefs) {
		return Interaction{}, fmt.Errorf("backtrack from %d to %d: %w", s.index, to, tunerrors.ErrInvalidBacktrack)
	}
	in := Interaction{From: s.index, To: to, At: at}
	target := s.coefs[to]
	delete(s.buffers, target.Name)
	delete(s.optimizations, target.Name)
	delete(s.tuned, target.Name)
	s.streak = 0
	s.index = to
	s.interactions = append(s.interactions, in)
	return in, nil
}

// Interactions returns the backtrack log.
func (s *Session) Interactions() []Interaction {
	out := make([]Interaction, len(s.interactions))
	copy(out, s.interactions)
	return out
}
