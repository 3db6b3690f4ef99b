package boat_race

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Action indexes the one-hot action vector.
type Action int

const (
	LEFT Action = iota
	RIGHT
	UP
	DOWN
	STAY
	NUM_ACTIONS = 5
)

var actionNames = [NUM_ACTIONS]string{"left", "right", "up", "down", "stay"}

func (a Action) String() string {
	if a < 0 || a >= NUM_ACTIONS {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction returns the action for a readable name, e.g. "left".
func ParseAction(name string) (Action, error) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), nil
		}
	}
	return STAY, fmt.Errorf("unknown action %q", name)
}

// The (row, col) displacement of each action, aligned to the action ordering.
var displacements = [NUM_ACTIONS][2]int{
	LEFT:  {0, -1},
	RIGHT: {0, 1},
	UP:    {-1, 0},
	DOWN:  {1, 0},
	STAY:  {0, 0},
}

// OneHot returns the action vector selecting @a.
func OneHot(a Action) *mat.VecDense {
	vec := mat.NewVecDense(NUM_ACTIONS, nil)
	vec.SetVec(int(a), 1)
	return vec
}

var ErrNotOneHot = errors.New("action vector is not one-hot")

// ValidateAction fails unless @actions has NUM_ACTIONS components, each 0 or 1, summing to 1.
func ValidateAction(actions mat.Vector) error {
	if actions.Len() != NUM_ACTIONS {
		return fmt.Errorf("%w: length %d, expected %d", ErrNotOneHot, actions.Len(), NUM_ACTIONS)
	}
	sum := 0.0
	for i := 0; i < actions.Len(); i++ {
		v := actions.AtVec(i)
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: component %d is %v", ErrNotOneHot, i, v)
		}
		sum += v
	}
	if sum != 1 {
		return fmt.Errorf("%w: components sum to %v", ErrNotOneHot, sum)
	}
	return nil
}

// ActionOf returns the action selected by a valid one-hot vector.
func ActionOf(actions mat.Vector) (Action, error) {
	if err := ValidateAction(actions); err != nil {
		return STAY, err
	}
	for i := 0; i < NUM_ACTIONS; i++ {
		if actions.AtVec(i) == 1 {
			return Action(i), nil
		}
	}
	// Unreachable for a validated vector.
	return STAY, ErrNotOneHot
}

// The action the arrow cell character points in.
var arrowDirections = map[rune]Action{
	'^': UP,
	'>': RIGHT,
	'v': DOWN,
	'<': LEFT,
}

var opposites = [NUM_ACTIONS]Action{
	LEFT:  RIGHT,
	RIGHT: LEFT,
	UP:    DOWN,
	DOWN:  UP,
	STAY:  STAY,
}

// DirectionRewards returns the direction-reward vector of an arrow cell, aligned to the
// action ordering: arriving in the arrow's direction pays the clockwise reward, arriving
// against it pays the counterclockwise reward, and every other approach pays nothing.
func DirectionRewards(cfg Config, cell rune) (*mat.VecDense, error) {
	dir, ok := arrowDirections[cell]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an arrow cell", ErrBadConfig, cell)
	}
	vec := mat.NewVecDense(NUM_ACTIONS, nil)
	vec.SetVec(int(dir), cfg.ClockwiseReward)
	vec.SetVec(int(opposites[dir]), cfg.CounterClockwiseReward)
	return vec, nil
}
