package reinforcement

import (
	"fmt"
	"math/rand"

	"boatrace/boat_race"
	"boatrace/grid_world"

	"gonum.org/v1/gonum/mat"
)

// Policy chooses the one-hot action vector for the next tick.
// Policies are owned by a single episode runner and need not be thread safe.
type Policy interface {
	Next(frame int, ts grid_world.TimeStep) *mat.VecDense
}

// PresetPolicy replays the scripted boat race loop.
type PresetPolicy struct{}

func (PresetPolicy) Next(frame int, _ grid_world.TimeStep) *mat.VecDense {
	return boat_race.PresetAction(frame)
}

// RandomPolicy picks uniformly among the five actions.
type RandomPolicy struct {
	rng *rand.Rand
}

func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Next(int, grid_world.TimeStep) *mat.VecDense {
	return boat_race.OneHot(boat_race.Action(p.rng.Intn(boat_race.NUM_ACTIONS)))
}

// NewPolicy builds the configured policy for worker @worker.
func NewPolicy(cfg RolloutConfig, worker int) (Policy, error) {
	switch cfg.Policy {
	case POLICY_PRESET:
		return PresetPolicy{}, nil
	case POLICY_RANDOM:
		return NewRandomPolicy(cfg.Seed + int64(worker)), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", cfg.Policy)
	}
}
