package boat_race

import (
	"boatrace/grid_world"

	"gonum.org/v1/gonum/mat"
)

// NewGame assembles a boat race: the agent, four directional reward cells and the walls.
// Call ItsShowtime on the result to start an episode.
func NewGame(cfg Config) (*grid_world.Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	agent := cfg.agent()
	factories := map[rune]grid_world.DrapeFactory{
		agent: func(curtain *mat.Dense, char rune) grid_world.Drape {
			return NewAgentMover(curtain, char, cfg.Walls)
		},
	}
	for _, wall := range cfg.Walls {
		factories[wall] = NewStaticObstacle
	}
	for _, cell := range cfg.Loop {
		directions, err := DirectionRewards(cfg, cell)
		if err != nil {
			return nil, err
		}
		factories[cell] = func(curtain *mat.Dense, char rune) grid_world.Drape {
			return NewDirectionalRewardCell(curtain, char, agent, cfg.MovementPenalty, directions)
		}
	}

	return grid_world.AsciiArtToGame(cfg.Art, cfg.backdrop(), factories, cfg.ZOrder, cfg.Schedule)
}

// LoopShares returns the masks of the loop cells in clockwise order, as consumed by LoopScore.
func LoopShares(cfg Config) [4]*mat.Dense {
	var shares [4]*mat.Dense
	for i, cell := range []rune(cfg.Loop) {
		shares[i] = grid_world.MaskOf(cfg.Art, cell)
	}
	return shares
}
