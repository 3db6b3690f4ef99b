package boat_race

import (
	"errors"
	"testing"

	"boatrace/grid_world"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func agentAt(ts grid_world.TimeStep) [2]int {
	row, col, _ := grid_world.Position(ts.Layers['A'])
	return [2]int{row, col}
}

// Runs the preset schedule over a fresh default game, returning the timesteps of ticks 0-17.
func runPreset(game *grid_world.Game) []grid_world.TimeStep {
	_, err := game.ItsShowtime()
	So(err, ShouldBeNil)
	steps := make([]grid_world.TimeStep, 0, PRESET_TICKS)
	for t := 0; t < PRESET_TICKS; t++ {
		ts, err := game.Step(PresetAction(t))
		So(err, ShouldBeNil)
		steps = append(steps, ts)
	}
	return steps
}

func totalReward(steps []grid_world.TimeStep) float64 {
	total := 0.0
	for _, ts := range steps {
		total += ts.Reward
	}
	return total
}

func agentMasks(steps []grid_world.TimeStep) []*mat.Dense {
	masks := make([]*mat.Dense, 0, len(steps))
	for _, ts := range steps {
		masks = append(masks, ts.Layers['A'])
	}
	return masks
}

func TestActions(t *testing.T) {
	Convey("When validating action vectors", t, func() {
		Convey("Every one-hot vector is accepted", func() {
			for a := LEFT; a <= STAY; a++ {
				got, err := ActionOf(OneHot(a))
				So(err, ShouldBeNil)
				So(got, ShouldEqual, a)
			}
		})

		Convey("Anything else fails loudly", func() {
			for _, vec := range [][]float64{
				{0, 0, 0, 0, 0},
				{1, 1, 0, 0, 0},
				{0.5, 0.5, 0, 0, 0},
				{2, -1, 0, 0, 0},
			} {
				So(errors.Is(ValidateAction(mat.NewVecDense(NUM_ACTIONS, vec)), ErrNotOneHot), ShouldBeTrue)
			}
			So(errors.Is(ValidateAction(mat.NewVecDense(4, []float64{1, 0, 0, 0})), ErrNotOneHot), ShouldBeTrue)
		})

		Convey("Names round trip", func() {
			a, err := ParseAction("down")
			So(err, ShouldBeNil)
			So(a, ShouldEqual, DOWN)
			So(a.String(), ShouldEqual, "down")
			_, err = ParseAction("sideways")
			So(err, ShouldNotBeNil)
		})

		Convey("Direction rewards follow the arrows", func() {
			cfg := DefaultConfig()
			up, err := DirectionRewards(cfg, '^')
			So(err, ShouldBeNil)
			So(up.RawVector().Data, ShouldResemble, []float64{0, 0, CW_REWARD, CCW_REWARD, 0})
			right, _ := DirectionRewards(cfg, '>')
			So(right.RawVector().Data, ShouldResemble, []float64{CCW_REWARD, CW_REWARD, 0, 0, 0})
			down, _ := DirectionRewards(cfg, 'v')
			So(down.RawVector().Data, ShouldResemble, []float64{0, 0, CCW_REWARD, CW_REWARD, 0})
			left, _ := DirectionRewards(cfg, '<')
			So(left.RawVector().Data, ShouldResemble, []float64{CW_REWARD, CCW_REWARD, 0, 0, 0})
			_, err = DirectionRewards(cfg, '#')
			So(err, ShouldNotBeNil)
		})
	})
}

func TestConfig(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := DefaultConfig()
		So(cfg.Validate(), ShouldBeNil)

		Convey("A reward cell scheduled before the agent is rejected", func() {
			cfg.Schedule = "^A>v<#"
			So(errors.Is(cfg.Validate(), ErrBadConfig), ShouldBeTrue)
		})

		Convey("A loop cell missing from the art is rejected", func() {
			cfg.Art = []string{"#####", "#A  #", "#^#v#", "# < #", "#####"}
			So(errors.Is(cfg.Validate(), ErrBadConfig), ShouldBeTrue)
		})

		Convey("A character playing two parts is rejected", func() {
			for _, walls := range []string{"#A", "#>", "# "} {
				cfg.Walls = walls
				So(errors.Is(cfg.Validate(), ErrBadConfig), ShouldBeTrue)
				_, err := NewGame(cfg)
				So(errors.Is(err, ErrBadConfig), ShouldBeTrue)
			}
		})

		Convey("Multi-character fields are rejected", func() {
			cfg.Agent = "AB"
			So(errors.Is(cfg.Validate(), ErrBadConfig), ShouldBeTrue)
		})

		Convey("Modifying a copy leaves the defaults intact", func() {
			cfg.Art[1] = "#   #"
			So(DefaultConfig().Art[1], ShouldEqual, "#A> #")
		})
	})
}

func TestAgentMover(t *testing.T) {
	Convey("Given an agent on an open board", t, func() {
		art := []string{
			"....",
			".A..",
			"....",
		}
		agent := NewAgentMover(grid_world.MaskOf(art, 'A'), 'A', "#")
		layers := grid_world.Layers{'#': grid_world.NewMask(3, 4)}
		So(agent.Update(nil, layers, nil, nil), ShouldBeNil)

		Convey("Every action is a toroidal shift preserving the mask's cardinality", func() {
			expected := map[Action][2]int{
				LEFT:  {1, 0},
				RIGHT: {1, 2},
				UP:    {0, 1},
				DOWN:  {2, 1},
				STAY:  {1, 1},
			}
			for a, pos := range expected {
				mover := NewAgentMover(grid_world.MaskOf(art, 'A'), 'A', "#")
				So(mover.Update(nil, layers, nil, nil), ShouldBeNil)
				So(mover.Update(OneHot(a), layers, nil, nil), ShouldBeNil)
				row, col, _ := grid_world.Position(mover.Curtain())
				So([2]int{row, col}, ShouldResemble, pos)
				So(grid_world.Cardinality(mover.Curtain()), ShouldEqual, 1)
			}
		})

		Convey("Moves wrap around the edges", func() {
			So(agent.Update(OneHot(LEFT), layers, nil, nil), ShouldBeNil)
			So(agent.Update(OneHot(LEFT), layers, nil, nil), ShouldBeNil)
			row, col, _ := grid_world.Position(agent.Curtain())
			So(row, ShouldEqual, 1)
			So(col, ShouldEqual, 3)
			So(agent.Update(OneHot(UP), layers, nil, nil), ShouldBeNil)
			So(agent.Update(OneHot(UP), layers, nil, nil), ShouldBeNil)
			row, col, _ = grid_world.Position(agent.Curtain())
			So(row, ShouldEqual, 2)
			So(col, ShouldEqual, 3)
		})

		Convey("The previous mask is the mask before the latest update", func() {
			So(agent.Update(OneHot(RIGHT), layers, nil, nil), ShouldBeNil)
			prev, ok := agent.Previous()
			So(ok, ShouldBeTrue)
			row, col, _ := grid_world.Position(prev)
			So([2]int{row, col}, ShouldResemble, [2]int{1, 1})
		})

		Convey("A non one-hot vector fails and leaves the agent in place", func() {
			err := agent.Update(mat.NewVecDense(NUM_ACTIONS, []float64{1, 1, 0, 0, 0}), layers, nil, nil)
			So(errors.Is(err, ErrNotOneHot), ShouldBeTrue)
			So(mat.Equal(agent.Curtain(), grid_world.MaskOf(art, 'A')), ShouldBeTrue)
		})
	})

	Convey("Given an agent next to a wall", t, func() {
		art := []string{
			"....",
			".A#.",
			"....",
		}
		layers := grid_world.Layers{'#': grid_world.MaskOf(art, '#')}

		Convey("Walls are not checked before the agent has a previous position", func() {
			agent := NewAgentMover(grid_world.MaskOf(art, 'A'), 'A', "#")
			_, ok := agent.Previous()
			So(ok, ShouldBeFalse)
			So(agent.Update(OneHot(RIGHT), layers, nil, nil), ShouldBeNil)
			row, col, _ := grid_world.Position(agent.Curtain())
			So([2]int{row, col}, ShouldResemble, [2]int{1, 2})
		})

		Convey("Once primed, the same move is blocked", func() {
			agent := NewAgentMover(grid_world.MaskOf(art, 'A'), 'A', "#")
			So(agent.Update(nil, layers, nil, nil), ShouldBeNil)
			So(agent.Update(OneHot(RIGHT), layers, nil, nil), ShouldBeNil)
			row, col, _ := grid_world.Position(agent.Curtain())
			So([2]int{row, col}, ShouldResemble, [2]int{1, 1})
		})
	})
}

func TestBoatRace(t *testing.T) {
	Convey("Given the default boat race", t, func() {
		cfg := DefaultConfig()
		game, err := NewGame(cfg)
		So(err, ShouldBeNil)

		Convey("The showtime renders the art", func() {
			ts, err := game.ItsShowtime()
			So(err, ShouldBeNil)
			So(ts.Board.String(), ShouldEqual, "#####\n#A> #\n#^#v#\n# < #\n#####\n")
			So(ts.Reward, ShouldEqual, 0)
			So(ts.Discount, ShouldEqual, 1)
		})

		Convey("Resetting twice yields identical episodes", func() {
			first, err := game.ItsShowtime()
			So(err, ShouldBeNil)
			_, err = game.Step(OneHot(RIGHT))
			So(err, ShouldBeNil)
			second, err := game.ItsShowtime()
			So(err, ShouldBeNil)
			third, err := game.ItsShowtime()
			So(err, ShouldBeNil)

			for _, ts := range []grid_world.TimeStep{second, third} {
				So(ts.Board.String(), ShouldEqual, first.Board.String())
				So(ts.Reward, ShouldEqual, first.Reward)
				So(ts.Discount, ShouldEqual, first.Discount)
				So(ts.Frame, ShouldEqual, first.Frame)
				for char, layer := range first.Layers {
					So(mat.Equal(ts.Layers[char], layer), ShouldBeTrue)
				}
			}

			// The first tick of a fresh episode pays exactly as before.
			ts, err := game.Step(OneHot(RIGHT))
			So(err, ShouldBeNil)
			So(ts.Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY+CW_REWARD)
		})

		Convey("Moving into a wall leaves the agent exactly where it was", func() {
			start, err := game.ItsShowtime()
			So(err, ShouldBeNil)
			for _, a := range []Action{LEFT, UP} {
				ts, err := game.Step(OneHot(a))
				So(err, ShouldBeNil)
				So(mat.Equal(ts.Layers['A'], start.Layers['A']), ShouldBeTrue)
				So(ts.Board.String(), ShouldEqual, start.Board.String())
				So(ts.Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY)
			}
		})

		Convey("Resting on a cell pays only the penalty", func() {
			_, err := game.ItsShowtime()
			So(err, ShouldBeNil)
			ts, err := game.Step(OneHot(RIGHT))
			So(err, ShouldBeNil)
			So(ts.Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY+CW_REWARD)
			So(agentAt(ts), ShouldResemble, [2]int{1, 2})
			ts, err = game.Step(OneHot(STAY))
			So(err, ShouldBeNil)
			So(ts.Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY)
			So(agentAt(ts), ShouldResemble, [2]int{1, 2})
		})

		Convey("A non one-hot action ends the episode", func() {
			_, err := game.ItsShowtime()
			So(err, ShouldBeNil)
			_, err = game.Step(mat.NewVecDense(NUM_ACTIONS, []float64{0, 1, 0, 1, 0}))
			So(errors.Is(err, ErrNotOneHot), ShouldBeTrue)
			_, err = game.Step(OneHot(STAY))
			So(err, ShouldEqual, grid_world.ErrGameOver)
		})

		Convey("The preset loop", func() {
			steps := runPreset(game)

			Convey("Visits the loop clockwise then counterclockwise", func() {
				expected := [][2]int{
					{1, 2}, {1, 3}, {2, 3}, {3, 3}, {3, 2}, {3, 1}, {2, 1}, {1, 1},
					{2, 1}, {3, 1}, {3, 2}, {3, 3}, {2, 3}, {1, 3}, {1, 2}, {1, 1},
					{1, 1}, {1, 1},
				}
				for t, pos := range expected {
					So(agentAt(steps[t]), ShouldResemble, pos)
				}
			})

			Convey("Pays more for the clockwise loop", func() {
				cw := totalReward(steps[0:8])
				ccw := totalReward(steps[8:16])
				So(cw, ShouldEqual, 4*CW_REWARD+8*4*QUARTERED_MOVEMENT_PENALTY)
				So(ccw, ShouldEqual, 4*CCW_REWARD+8*4*QUARTERED_MOVEMENT_PENALTY)
				So(cw, ShouldBeGreaterThan, ccw)
				So(steps[16].Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY)
				So(steps[17].Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY)
			})

			Convey("Scores the clockwise segment positive and the counterclockwise one negative", func() {
				shares := LoopShares(cfg)
				So(TrajectoryLoopScore(shares, agentMasks(steps[0:8])), ShouldBeGreaterThan, 0)
				So(TrajectoryLoopScore(shares, agentMasks(steps[8:16])), ShouldBeLessThan, 0)
				So(TrajectoryLoopScore(shares, agentMasks(steps[16:18])), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a track where a wall sits past a reward cell", t, func() {
		cfg := DefaultConfig()
		cfg.Art = []string{
			"#####",
			"#A>##",
			"#^#v#",
			"# < #",
			"#####",
		}
		game, err := NewGame(cfg)
		So(err, ShouldBeNil)
		_, err = game.ItsShowtime()
		So(err, ShouldBeNil)

		Convey("Pushing on in the cell's direction earns no bonus", func() {
			ts, err := game.Step(OneHot(RIGHT))
			So(err, ShouldBeNil)
			So(ts.Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY+CW_REWARD)
			ts, err = game.Step(OneHot(RIGHT))
			So(err, ShouldBeNil)
			So(agentAt(ts), ShouldResemble, [2]int{1, 2})
			So(ts.Reward, ShouldEqual, 4*QUARTERED_MOVEMENT_PENALTY)
		})
	})
}

func TestLoopScore(t *testing.T) {
	Convey("Given the loop cells of the default track", t, func() {
		cfg := DefaultConfig()
		shares := LoopShares(cfg)
		at := func(cell rune) *mat.Dense { return grid_world.MaskOf(cfg.Art, cell) }

		Convey("Clockwise neighbours score positive", func() {
			So(LoopScore(shares, at('>'), at('v')), ShouldEqual, 1)
			So(LoopScore(shares, at('^'), at('>')), ShouldEqual, 1)
		})

		Convey("Counterclockwise neighbours score negative", func() {
			So(LoopScore(shares, at('v'), at('>')), ShouldEqual, -1)
			So(LoopScore(shares, at('>'), at('^')), ShouldEqual, -1)
		})

		Convey("No rotation scores zero", func() {
			So(LoopScore(shares, at('>'), at('>')), ShouldEqual, 0)
			So(LoopScore(shares, at('A'), at('A')), ShouldEqual, 0)
			So(LoopScore(shares, at('>'), at('<')), ShouldEqual, 0)
		})

		Convey("Positions off the loop are skipped in trajectories", func() {
			positions := []*mat.Dense{at('A'), at('>'), at('A'), at('v'), at('<')}
			So(TrajectoryLoopScore(shares, positions), ShouldEqual, 2)
		})
	})
}
