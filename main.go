/*
Boatrace is a toy reinforcement learning environment: a 5x5 grid world where an agent sails
around a loop of four directional reward cells, and is paid more for going round clockwise
than counterclockwise. It is the classic example of a reward that can be gamed: an agent
maximizing reward learns to circle, not to finish anything.

The environment can be rolled out locally under a scripted or random policy, or served over
websocket to remote agents, one episode per connection.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"boatrace/boat_race"
	"boatrace/grid_world"
	"boatrace/reinforcement"
	"boatrace/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var (
	configPath string
	logLevel   string
)

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "boatrace",
		Short:         "Boat race grid world",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to the run config")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.AddCommand(rolloutCommand(), presetCommand(), serveCommand())
	return cmd
}

// loadConfig reads the config file, falling back to the defaults when the default path is absent.
func loadConfig(cmd *cobra.Command) (*reinforcement.RunConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		logrus.WithField("config", configPath).Warn("config not found, using defaults")
		return reinforcement.DefaultRunConfig(), nil
	}
	return reinforcement.FromYaml(configPath)
}

func rolloutCommand() *cobra.Command {
	var episodes, workers int
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Run the configured episodes and summarize their rewards",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("episodes") {
				cfg.Rollout.Episodes = episodes
			}
			if cmd.Flags().Changed("workers") {
				cfg.Rollout.Workers = workers
			}

			ctx, cancel, err := cfg.Rollout.WithDeadline(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			summary, err := reinforcement.RunEpisodes(ctx, cfg, func(_ context.Context, n int) {
				if n%100 == 0 {
					logrus.WithField("episodes", n).Info("progress")
				}
			})
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"episodes":      len(summary.Episodes),
				"policy":        cfg.Rollout.Policy,
				"total_reward":  summary.TotalReward,
				"mean_reward":   summary.MeanReward,
				"mean_loop":     summary.MeanLoopScore,
				"truncated":     summary.Truncated,
				"cw_reward":     cfg.Environment.ClockwiseReward,
				"ccw_reward":    cfg.Environment.CounterClockwiseReward,
				"horizon_ticks": cfg.Rollout.Horizon,
			}).Info("summary")
			return nil
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes", 1, "Override the number of episodes")
	cmd.Flags().IntVar(&workers, "workers", 1, "Override the number of workers")
	return cmd
}

func presetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preset",
		Short: "Play the scripted loop, printing the board and reward of every tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			env := cfg.Environment
			game, err := boat_race.NewGame(env)
			if err != nil {
				return err
			}

			ts, err := game.ItsShowtime()
			if err != nil {
				return err
			}
			fmt.Print(ts.Board)
			// steps[t+1] is the timestep emitted by tick t.
			steps := []grid_world.TimeStep{ts}
			for t := 0; t < boat_race.PRESET_TICKS; t++ {
				actions := boat_race.PresetAction(t)
				action, _ := boat_race.ActionOf(actions)
				next, err := game.Step(actions)
				if err != nil {
					return err
				}
				fmt.Printf("tick %d: %s reward=%.2f\n%s", t, action, next.Reward, next.Board)
				steps = append(steps, next)
			}

			agent := []rune(env.Agent)[0]
			shares := boat_race.LoopShares(env)
			// Reward and loop score of ticks [from, to).
			segment := func(from, to int) (reward, score float64) {
				positions := []*mat.Dense{steps[from].Layers[agent]}
				for _, step := range steps[from+1 : to+1] {
					reward += step.Reward
					positions = append(positions, step.Layers[agent])
				}
				return reward, boat_race.TrajectoryLoopScore(shares, positions)
			}
			cwReward, cwScore := segment(0, 8)
			ccwReward, ccwScore := segment(8, 16)
			fmt.Printf("clockwise: reward=%.2f loop=%.0f\n", cwReward, cwScore)
			fmt.Printf("counterclockwise: reward=%.2f loop=%.0f\n", ccwReward, ccwScore)
			return nil
		},
	}
}

func serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve episodes to remote agents over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(addr, cfg.Environment)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "The host address")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("boatrace")
		os.Exit(1)
	}
}
