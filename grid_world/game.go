package grid_world

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Drape is a board-sized entity whose occupancy is described by a mask (its curtain)
// that it may rewrite on each tick.
type Drape interface {
	Character() rune
	// Curtain is the live occupancy mask of the drape.
	Curtain() *mat.Dense
	// Update is called once per tick in the game's update schedule. When a game is
	// reset each drape is primed with nil actions before the first tick.
	Update(actions mat.Vector, layers Layers, things Things, plot *Plot) error
}

// DrapeFactory builds a drape over its initial curtain, derived from the game art.
type DrapeFactory func(curtain *mat.Dense, char rune) Drape

// Layers holds a snapshot of every drape's mask, taken at the start of a tick before any
// drape updates. Updates never observe each other's changes through Layers.
type Layers map[rune]*mat.Dense

// Things holds the live drapes of an episode, by character.
type Things map[rune]Drape

// Plot is the per-episode context shared by the drapes: the reward collected in the
// current tick and the frame count. A fresh Plot is created on every reset.
type Plot struct {
	frame  int
	reward float64
}

// AddReward adds to the reward emitted at the end of the current tick.
func (p *Plot) AddReward(reward float64) {
	p.reward += reward
}

// Frame is the number of ticks completed in the episode.
func (p *Plot) Frame() int {
	return p.frame
}

// TimeStep is what the game emits after a reset or a tick.
type TimeStep struct {
	Board    Board
	Reward   float64
	Discount float64
	Frame    int
	// Layers is a copy of every drape's mask after the tick.
	Layers Layers
}

// Board is the composited view of the game: the backdrop overlaid by every drape in z-order.
type Board [][]rune

func (b Board) String() string {
	var sb strings.Builder
	for _, row := range b {
		sb.WriteString(string(row))
		sb.WriteByte('\n')
	}
	return sb.String()
}

var (
	ErrGameOver    = errors.New("game over, reset required")
	ErrNotStarted  = errors.New("game not started, call ItsShowtime first")
	ErrUnknownChar = errors.New("unknown character in art")
	ErrBadArt      = errors.New("malformed art")
	ErrBadOrder    = errors.New("malformed z-order or update schedule")
)

// Game is a recipe for episodes: the art, the drape factories, and the order drapes are
// drawn and updated in. The live state of an episode is rebuilt on every ItsShowtime.
type Game struct {
	art       []string
	backdrop  rune
	factories map[rune]DrapeFactory
	zOrder    []rune
	schedule  []rune

	// Live episode state
	things   Things
	plot     *Plot
	started  bool
	gameOver bool
}

// AsciiArtToGame validates the art and the drape orderings and returns a game recipe.
// Every non-backdrop character of the art must have a drape factory, and every drape
// character must appear exactly once in both @zOrder (bottom to top) and @schedule.
func AsciiArtToGame(
	art []string,
	backdrop rune,
	factories map[rune]DrapeFactory,
	zOrder string,
	schedule string,
) (*Game, error) {
	if len(art) == 0 || len(art[0]) == 0 {
		return nil, fmt.Errorf("%w: empty art", ErrBadArt)
	}
	cols := len([]rune(art[0]))
	for i, line := range art {
		if len([]rune(line)) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrBadArt, i, len([]rune(line)), cols)
		}
		for j, c := range []rune(line) {
			if _, ok := factories[c]; !ok && c != backdrop {
				return nil, fmt.Errorf("%w: %q at (%d,%d)", ErrUnknownChar, c, i, j)
			}
		}
	}

	if err := checkOrder("z-order", zOrder, factories); err != nil {
		return nil, err
	}
	if err := checkOrder("update schedule", schedule, factories); err != nil {
		return nil, err
	}

	return &Game{
		art:       append([]string(nil), art...),
		backdrop:  backdrop,
		factories: factories,
		zOrder:    []rune(zOrder),
		schedule:  []rune(schedule),
	}, nil
}

func checkOrder(name, order string, factories map[rune]DrapeFactory) error {
	seen := map[rune]bool{}
	for _, c := range order {
		if _, ok := factories[c]; !ok {
			return fmt.Errorf("%w: %s names %q which has no drape", ErrBadOrder, name, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: %s names %q twice", ErrBadOrder, name, c)
		}
		seen[c] = true
	}
	if len(seen) != len(factories) {
		return fmt.Errorf("%w: %s covers %d of %d drapes", ErrBadOrder, name, len(seen), len(factories))
	}
	return nil
}

// ItsShowtime starts a new episode: drapes are rebuilt from the art, a fresh Plot is
// created and every drape is primed with nil actions in schedule order.
func (g *Game) ItsShowtime() (TimeStep, error) {
	g.things = make(Things, len(g.factories))
	for char, factory := range g.factories {
		g.things[char] = factory(MaskOf(g.art, char), char)
	}
	g.plot = &Plot{}
	g.started = true
	g.gameOver = false

	if err := g.update(nil); err != nil {
		return TimeStep{}, err
	}
	// Priming rewards are not part of the episode.
	g.plot.reward = 0
	return g.timeStep(0), nil
}

// Step runs one tick: every drape is updated in schedule order with @actions.
// Any drape error ends the episode; it is returned and later calls fail with ErrGameOver.
func (g *Game) Step(actions mat.Vector) (TimeStep, error) {
	if !g.started {
		return TimeStep{}, ErrNotStarted
	}
	if g.gameOver {
		return TimeStep{}, ErrGameOver
	}
	if actions == nil {
		g.gameOver = true
		return TimeStep{}, errors.New("step called with nil actions")
	}

	g.plot.reward = 0
	if err := g.update(actions); err != nil {
		return TimeStep{}, err
	}
	g.plot.frame++
	return g.timeStep(g.plot.reward), nil
}

func (g *Game) update(actions mat.Vector) error {
	layers := g.layers()
	for _, char := range g.schedule {
		if err := g.things[char].Update(actions, layers, g.things, g.plot); err != nil {
			g.gameOver = true
			return fmt.Errorf("update %q at frame %d: %w", char, g.plot.frame, err)
		}
	}
	return nil
}

func (g *Game) layers() Layers {
	layers := make(Layers, len(g.things))
	for char, thing := range g.things {
		layers[char] = CloneMask(thing.Curtain())
	}
	return layers
}

func (g *Game) timeStep(reward float64) TimeStep {
	return TimeStep{
		Board:    g.render(),
		Reward:   reward,
		Discount: 1,
		Frame:    g.plot.frame,
		Layers:   g.layers(),
	}
}

// Composite the backdrop and the drapes, drawn bottom to top in z-order.
func (g *Game) render() Board {
	rows, cols := len(g.art), len([]rune(g.art[0]))
	board := make(Board, rows)
	for i := range board {
		board[i] = []rune(strings.Repeat(string(g.backdrop), cols))
	}
	for _, char := range g.zOrder {
		curtain := g.things[char].Curtain()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if curtain.At(i, j) != 0 {
					board[i][j] = char
				}
			}
		}
	}
	return board
}
