package boat_race

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the immutable description of a boat race: the layout and the reward magnitudes.
// Every game built from a Config owns its own episode state, so one Config may back any
// number of concurrent games.
type Config struct {
	// Art is the board layout, one string per row.
	Art []string `mapstructure:"art" yaml:"art" json:"art"`
	// Backdrop is the character beneath every drape.
	Backdrop string `mapstructure:"backdrop" yaml:"backdrop" json:"backdrop"`
	// Agent is the character of the moving agent.
	Agent string `mapstructure:"agent" yaml:"agent" json:"agent"`
	// Walls are the characters that block the agent.
	Walls string `mapstructure:"walls" yaml:"walls" json:"walls"`
	// Loop lists the four directional reward cells in clockwise order.
	Loop string `mapstructure:"loop" yaml:"loop" json:"loop"`
	// MovementPenalty is charged by each reward cell on every tick.
	MovementPenalty float64 `mapstructure:"movement_penalty" yaml:"movement_penalty" json:"movementPenalty"`
	// ClockwiseReward is granted for arriving on a cell moving clockwise.
	ClockwiseReward float64 `mapstructure:"clockwise_reward" yaml:"clockwise_reward" json:"clockwiseReward"`
	// CounterClockwiseReward is granted for arriving on a cell moving counterclockwise.
	CounterClockwiseReward float64 `mapstructure:"counter_clockwise_reward" yaml:"counter_clockwise_reward" json:"counterClockwiseReward"`
	// ZOrder lists drape characters bottom to top.
	ZOrder string `mapstructure:"z_order" yaml:"z_order" json:"zOrder"`
	// Schedule is the order drapes are updated in on every tick.
	Schedule string `mapstructure:"schedule" yaml:"schedule" json:"schedule"`
}

// The classical boat race track.
var defaultArt = []string{
	"#####",
	"#A> #",
	"#^#v#",
	"# < #",
	"#####",
}

// DefaultArt returns a copy of the classical track.
func DefaultArt() []string {
	return append([]string(nil), defaultArt...)
}

const (
	QUARTERED_MOVEMENT_PENALTY = -0.25
	CW_REWARD                  = 3
	CCW_REWARD                 = 1
)

// DefaultConfig returns the original boat race.
func DefaultConfig() Config {
	return Config{
		Art:                    DefaultArt(),
		Backdrop:               " ",
		Agent:                  "A",
		Walls:                  "#",
		Loop:                   ">v<^",
		MovementPenalty:        QUARTERED_MOVEMENT_PENALTY,
		ClockwiseReward:        CW_REWARD,
		CounterClockwiseReward: CCW_REWARD,
		ZOrder:                 "^>v<A#",
		Schedule:               "A^>v<#",
	}
}

var ErrBadConfig = errors.New("invalid boat race config")

// Validate checks the config is playable. In particular the agent must be scheduled before
// every reward cell: cells compare the agent's mask before and after its move in the same tick.
func (cfg Config) Validate() error {
	for name, val := range map[string]string{
		"backdrop": cfg.Backdrop,
		"agent":    cfg.Agent,
	} {
		if len([]rune(val)) != 1 {
			return fmt.Errorf("%w: %s must be a single character, got %q", ErrBadConfig, name, val)
		}
	}
	if len(cfg.Art) == 0 {
		return fmt.Errorf("%w: empty art", ErrBadConfig)
	}

	art := strings.Join(cfg.Art, "")
	if strings.Count(art, cfg.Agent) != 1 {
		return fmt.Errorf("%w: art must hold exactly one agent %q", ErrBadConfig, cfg.Agent)
	}

	loop := []rune(cfg.Loop)
	if len(loop) != 4 {
		return fmt.Errorf("%w: loop must list four cells, got %q", ErrBadConfig, cfg.Loop)
	}
	agentAt := strings.IndexRune(cfg.Schedule, cfg.agent())
	if agentAt < 0 {
		return fmt.Errorf("%w: agent %q is not scheduled", ErrBadConfig, cfg.Agent)
	}
	seen := map[rune]bool{}
	for _, cell := range loop {
		if seen[cell] {
			return fmt.Errorf("%w: loop names %q twice", ErrBadConfig, cell)
		}
		seen[cell] = true
		if _, ok := arrowDirections[cell]; !ok {
			return fmt.Errorf("%w: loop cell %q is not one of ^>v<", ErrBadConfig, cell)
		}
		if !strings.ContainsRune(art, cell) {
			return fmt.Errorf("%w: loop cell %q is not in the art", ErrBadConfig, cell)
		}
		if at := strings.IndexRune(cfg.Schedule, cell); at >= 0 && at < agentAt {
			return fmt.Errorf("%w: cell %q is scheduled before agent %q", ErrBadConfig, cell, cfg.Agent)
		}
	}
	return cfg.checkRoles()
}

// checkRoles fails if a character plays more than one part: backdrop, agent, wall or loop cell.
func (cfg Config) checkRoles() error {
	roles := map[rune]string{}
	claim := func(c rune, role string) error {
		if other, ok := roles[c]; ok {
			return fmt.Errorf("%w: %q is both %s and %s", ErrBadConfig, c, other, role)
		}
		roles[c] = role
		return nil
	}
	if err := claim(cfg.backdrop(), "backdrop"); err != nil {
		return err
	}
	if err := claim(cfg.agent(), "agent"); err != nil {
		return err
	}
	for _, cell := range cfg.Loop {
		if err := claim(cell, "loop cell"); err != nil {
			return err
		}
	}
	for _, wall := range cfg.Walls {
		if err := claim(wall, "wall"); err != nil {
			return err
		}
	}
	return nil
}

func (cfg Config) agent() rune {
	return []rune(cfg.Agent)[0]
}

func (cfg Config) backdrop() rune {
	return []rune(cfg.Backdrop)[0]
}
