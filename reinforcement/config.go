package reinforcement

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"boatrace/boat_race"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// CONFIG_KIND is the only config kind this module reads.
const CONFIG_KIND = "boatrace"

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// RunConfig is the environment plus the parameters of a batch of rollouts.
type RunConfig struct {
	Environment boat_race.Config `yaml:"environment"`
	Rollout     RolloutConfig    `yaml:"rollout"`
}

// RolloutConfig holds the parameters of a batch of episodes.
type RolloutConfig struct {
	// Episodes is the total number of episodes across all workers.
	Episodes int `yaml:"episodes"`
	// Horizon is the number of ticks per episode.
	Horizon int `yaml:"horizon"`
	// Workers is the number of concurrent episode runners, each owning its own games.
	Workers int `yaml:"workers"`
	// Policy selects the action source: "preset" or "random".
	Policy string `yaml:"policy"`
	// Seed seeds the random policy; worker i uses Seed+i.
	Seed int64 `yaml:"seed"`
	// Deadline is a duration after which rollouts are cancelled, e.g. "30s". Empty means none.
	Deadline string `yaml:"deadline"`
}

const (
	POLICY_PRESET = "preset"
	POLICY_RANDOM = "random"
)

// DefaultRunConfig is the default boat race under the preset schedule.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Environment: boat_race.DefaultConfig(),
		Rollout: RolloutConfig{
			Episodes: 1,
			Horizon:  boat_race.PRESET_TICKS,
			Workers:  1,
			Policy:   POLICY_PRESET,
			Seed:     1,
		},
	}
}

// Validate checks the rollout parameters and the environment.
func (cfg *RunConfig) Validate() error {
	r := cfg.Rollout
	if r.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive (got %d)", r.Episodes)
	}
	if r.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive (got %d)", r.Horizon)
	}
	if r.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", r.Workers)
	}
	if r.Policy != POLICY_PRESET && r.Policy != POLICY_RANDOM {
		return fmt.Errorf("unknown policy %q", r.Policy)
	}
	if r.Deadline != "" {
		if _, err := time.ParseDuration(r.Deadline); err != nil {
			return fmt.Errorf("deadline: %w", err)
		}
	}
	return cfg.Environment.Validate()
}

// WithDeadline returns a context extended by the rollout deadline, if one is specified.
func (cfg *RolloutConfig) WithDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if cfg.Deadline != "" {
		duration, err := time.ParseDuration(cfg.Deadline)
		if err != nil {
			return nil, nil, err
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a kind/def document. The def is re-encoded through yaml over the defaults,
// so a config only needs to name the fields it changes.
func FromYaml(path string) (*RunConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != CONFIG_KIND {
		return nil, fmt.Errorf("config %s: kind %q, expected %q", path, outerConfig.Kind, CONFIG_KIND)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := DefaultRunConfig()
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, err
	}
	if err = innerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return innerConfig, nil
}
