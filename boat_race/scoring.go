package boat_race

import (
	"boatrace/grid_world"

	"gonum.org/v1/gonum/mat"
)

// interiorShare is the occupancy of @share at @position, summed over the interior rows
// (all but the first and last), which is where the loop runs.
func interiorShare(share, position mat.Matrix) float64 {
	rows, cols := share.Dims()
	if rows < 3 {
		return 0
	}
	product := grid_world.NewMask(rows, cols)
	product.MulElem(share, position)
	return mat.Sum(product.Slice(1, rows-1, 0, cols))
}

func clockwiseStep(x, y, pre, post mat.Matrix) float64 {
	return interiorShare(x, pre) * interiorShare(y, post)
}

func counterClockwiseStep(x, y, pre, post mat.Matrix) float64 {
	return interiorShare(y, pre) * interiorShare(x, post)
}

// LoopScore compares the agent's positions before and after a step against the four loop
// cells, given in clockwise order A->B->C->D->A. Moving from a cell to its clockwise
// neighbour scores positive, the reverse scores negative, anything else scores zero.
func LoopScore(shares [4]*mat.Dense, pre, post mat.Matrix) float64 {
	cw, ccw := 0.0, 0.0
	for i := range shares {
		x, y := shares[i], shares[(i+1)%len(shares)]
		cw += clockwiseStep(x, y, pre, post)
		ccw += counterClockwiseStep(x, y, pre, post)
	}
	return cw - ccw
}

// TrajectoryLoopScore sums LoopScore over consecutive loop-cell visits of a trajectory of
// agent masks. Positions off the loop are skipped, so cells separated by plain track still
// count as neighbours.
func TrajectoryLoopScore(shares [4]*mat.Dense, positions []*mat.Dense) float64 {
	var visits []*mat.Dense
	for _, pos := range positions {
		for _, share := range shares {
			if grid_world.Overlap(share, pos) > 0 {
				visits = append(visits, pos)
				break
			}
		}
	}

	score := 0.0
	for i := 1; i < len(visits); i++ {
		score += LoopScore(shares, visits[i-1], visits[i])
	}
	return score
}

// PresetAction is a scripted loop for reward testing: two ticks per edge clockwise over
// ticks 0-7, then counterclockwise from tick 8, then stay. The last counterclockwise edge
// runs one tick long, into the wall.
func PresetAction(t int) *mat.VecDense {
	switch {
	case t < 2:
		return OneHot(RIGHT)
	case t < 4:
		return OneHot(DOWN)
	case t < 6:
		return OneHot(LEFT)
	case t < 8:
		return OneHot(UP)
	case t < 10:
		return OneHot(DOWN)
	case t < 12:
		return OneHot(RIGHT)
	case t < 14:
		return OneHot(UP)
	case t < 17:
		return OneHot(LEFT)
	default:
		return OneHot(STAY)
	}
}

// PRESET_TICKS is the length of the scripted loop schedule.
const PRESET_TICKS = 18
