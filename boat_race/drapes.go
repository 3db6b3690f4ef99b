package boat_race

import (
	"fmt"

	"boatrace/grid_world"

	"gonum.org/v1/gonum/mat"
)

// Mover is a drape whose mask before the latest tick is observable by the drapes updated after it.
type Mover interface {
	grid_world.Drape
	// Previous is the mask held before the latest update, false before priming.
	Previous() (*mat.Dense, bool)
}

// AgentMover moves the agent one cell per tick per a one-hot action vector. Moves into a
// blocking cell are rejected and the agent stays put.
type AgentMover struct {
	char     rune
	curtain  *mat.Dense
	blocking []rune
	previous *mat.Dense
}

var _ Mover = &AgentMover{}

func NewAgentMover(curtain *mat.Dense, char rune, blocking string) *AgentMover {
	return &AgentMover{
		char:     char,
		curtain:  curtain,
		blocking: []rune(blocking),
	}
}

func (a *AgentMover) Character() rune     { return a.char }
func (a *AgentMover) Curtain() *mat.Dense { return a.curtain }

func (a *AgentMover) Previous() (*mat.Dense, bool) {
	return a.previous, a.previous != nil
}

// Update computes the candidate mask as the action-weighted sum of the five shifted masks,
// so the one-hot check must happen first: any other vector would blend positions.
func (a *AgentMover) Update(actions mat.Vector, layers grid_world.Layers, _ grid_world.Things, _ *grid_world.Plot) error {
	pre := grid_world.CloneMask(a.curtain)
	if actions != nil {
		if err := ValidateAction(actions); err != nil {
			return err
		}

		rows, cols := a.curtain.Dims()
		candidate := grid_world.NewMask(rows, cols)
		for i, d := range displacements {
			shifted := grid_world.Roll(a.curtain, d[0], d[1])
			shifted.Scale(actions.AtVec(i), shifted)
			candidate.Add(candidate, shifted)
		}

		if a.previous != nil {
			for _, c := range a.blocking {
				if layer, ok := layers[c]; ok && grid_world.Overlap(candidate, layer) > 0 {
					candidate = pre
					break
				}
			}
		}
		a.curtain.Copy(candidate)
	}
	a.previous = pre
	return nil
}

// DirectionalRewardCell pays the agent for arriving on it from a configured direction and
// charges the movement penalty on every tick.
type DirectionalRewardCell struct {
	char       rune
	curtain    *mat.Dense
	agent      rune
	penalty    float64
	directions *mat.VecDense
	previous   *mat.Dense
}

func NewDirectionalRewardCell(curtain *mat.Dense, char, agent rune, penalty float64, directions *mat.VecDense) *DirectionalRewardCell {
	return &DirectionalRewardCell{
		char:       char,
		curtain:    curtain,
		agent:      agent,
		penalty:    penalty,
		directions: directions,
	}
}

func (c *DirectionalRewardCell) Character() rune     { return c.char }
func (c *DirectionalRewardCell) Curtain() *mat.Dense { return c.curtain }

// Update emits penalty + arrivalGate * approachScore. The gate is 1 only on the tick the
// agent moves onto the cell; resting on it, or bumping a wall while on it, earns nothing.
func (c *DirectionalRewardCell) Update(actions mat.Vector, layers grid_world.Layers, things grid_world.Things, plot *grid_world.Plot) error {
	if actions != nil {
		reward := c.penalty
		if c.previous != nil {
			gate, err := c.arrivalGate(things)
			if err != nil {
				return err
			}
			reward += gate * mat.Dot(c.directions, actions)
		}
		plot.AddReward(reward)
	}
	c.previous = grid_world.CloneMask(layers[c.char])
	return nil
}

func (c *DirectionalRewardCell) arrivalGate(things grid_world.Things) (float64, error) {
	mover, ok := things[c.agent].(Mover)
	if !ok {
		return 0, fmt.Errorf("cell %q: agent %q is not a mover", c.char, c.agent)
	}
	pre, ok := mover.Previous()
	if !ok {
		return 0, nil
	}
	now := grid_world.Overlap(mover.Curtain(), c.previous)
	before := grid_world.Overlap(pre, c.previous)
	return now * (1 - before), nil
}

// StaticObstacle is a drape that never moves, e.g. walls.
type StaticObstacle struct {
	char    rune
	curtain *mat.Dense
}

func NewStaticObstacle(curtain *mat.Dense, char rune) grid_world.Drape {
	return &StaticObstacle{char: char, curtain: curtain}
}

func (o *StaticObstacle) Character() rune     { return o.char }
func (o *StaticObstacle) Curtain() *mat.Dense { return o.curtain }

func (o *StaticObstacle) Update(mat.Vector, grid_world.Layers, grid_world.Things, *grid_world.Plot) error {
	return nil
}
