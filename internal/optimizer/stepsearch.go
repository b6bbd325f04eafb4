package optimizer

import (
	"context"
	"math"
	"math/rand"
	"sync"

	tunerrors "github.com/Iron-Ham/coeftune/internal/errors"
)

// exploitScore is the mean reward above which StepSearch refines around
// what worked instead of exploring.
const exploitScore = 0.5

// minStepFraction floors the decayed step at a fraction of the initial step.
const minStepFraction = 0.1

// StepSearch is a gradient-free stochastic search. Each call shrinks the
// coefficient's step by its decay rate. When the observed mean reward is
// good it moves toward the reward-weighted mean of the tried values;
// otherwise it steps away from the current value in a random direction.
type StepSearch struct {
	mu         sync.Mutex
	rng        *rand.Rand
	iterations map[string]int
}

// NewStepSearch creates a search seeded with seed.
func NewStepSearch(seed int64) *StepSearch {
	return &StepSearch{
		rng:        rand.New(rand.NewSource(seed)),
		iterations: make(map[string]int),
	}
}

// Suggest implements Optimizer.
func (s *StepSearch) Suggest(ctx context.Context, b Bounds, obs []Observation) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		return 0, tunerrors.ErrNoObservations
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.iterations[b.Name]
	s.iterations[b.Name] = iter + 1

	step := s.step(b, iter)

	var sum, weighted, weight float64
	for _, o := range obs {
		sum += o.Reward
		weighted += o.Value * o.Reward
		weight += o.Reward
	}
	score := sum / float64(len(obs))

	var next float64
	if score >= exploitScore && weight > 0 {
		center := weighted / weight
		jitter := (s.rng.Float64()*2 - 1) * step * (1 - score)
		next = center + jitter
	} else {
		dir := 1.0
		if s.rng.Intn(2) == 0 {
			dir = -1
		}
		next = b.Current + dir*step
		// Bounce off a bound rather than pinning to it.
		if next < b.Min || next > b.Max {
			next = b.Current - dir*step
		}
	}
	return math.Max(b.Min, math.Min(b.Max, next)), nil
}

func (s *StepSearch) step(b Bounds, iter int) float64 {
	initial := b.InitialStep
	if initial <= 0 {
		initial = (b.Max - b.Min) / 10
	}
	decay := b.StepDecay
	if decay <= 0 || decay > 1 {
		decay = 1
	}
	step := initial * math.Pow(decay, float64(iter))
	return math.Max(step, initial*minStepFraction)
}

// Iterations returns how many suggestions have been made for name.
func (s *StepSearch) Iterations(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterations[name]
}
