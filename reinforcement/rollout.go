package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"boatrace/atomic_float"
	"boatrace/boat_race"
	"boatrace/grid_world"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Transition is a single tick of an episode: the agent at Pre takes Action, lands at Post
// and the game emits Reward.
type Transition struct {
	Frame  int
	Action boat_race.Action
	Reward float64
	Pre    *mat.Dense
	Post   *mat.Dense
}

// Episode is the sequence of transitions of one episode.
type Episode struct {
	ID     int
	Worker int
	Steps  []Transition
}

// TotalReward sums the rewards of ticks [from, to), clamped to the episode.
func (ep *Episode) TotalReward(from, to int) float64 {
	total := 0.0
	for _, step := range ep.window(from, to) {
		total += step.Reward
	}
	return total
}

// Positions returns the agent masks after each tick of [from, to).
func (ep *Episode) Positions(from, to int) []*mat.Dense {
	window := ep.window(from, to)
	positions := make([]*mat.Dense, 0, len(window))
	for _, step := range window {
		positions = append(positions, step.Post)
	}
	return positions
}

// LoopScore scores ticks [from, to) for net clockwise motion, including the agent's position
// before the first of them.
func (ep *Episode) LoopScore(shares [4]*mat.Dense, from, to int) float64 {
	window := ep.window(from, to)
	if len(window) == 0 {
		return 0
	}
	positions := append([]*mat.Dense{window[0].Pre}, ep.Positions(from, to)...)
	return boat_race.TrajectoryLoopScore(shares, positions)
}

func (ep *Episode) window(from, to int) []Transition {
	if from < 0 {
		from = 0
	}
	if to > len(ep.Steps) {
		to = len(ep.Steps)
	}
	if from >= to {
		return nil
	}
	return ep.Steps[from:to]
}

// RunEpisode resets the game and steps it @horizon times under @policy.
// Any step error is fatal to the episode and returned.
func RunEpisode(
	ctx context.Context,
	game *grid_world.Game,
	agent rune,
	policy Policy,
	horizon int,
) (*Episode, error) {
	ts, err := game.ItsShowtime()
	if err != nil {
		return nil, err
	}

	episode := &Episode{Steps: make([]Transition, 0, horizon)}
	for frame := 0; frame < horizon; frame++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		actions := policy.Next(frame, ts)
		action, err := boat_race.ActionOf(actions)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame, err)
		}
		next, err := game.Step(actions)
		if err != nil {
			return nil, err
		}
		episode.Steps = append(episode.Steps, Transition{
			Frame:  frame,
			Action: action,
			Reward: next.Reward,
			Pre:    ts.Layers[agent],
			Post:   next.Layers[agent],
		})
		ts = next
	}
	return episode, nil
}

// ProgressFunc is a callback by which rollouts report the number of completed episodes.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, int)

// Summary aggregates a batch of rollouts.
type Summary struct {
	Episodes      []*Episode
	TotalReward   float64
	MeanReward    float64
	MeanLoopScore float64
	// Truncated is set when the deadline expired before every episode completed.
	Truncated bool
}

/*
RunEpisodes runs the configured number of episodes on a fixed pool of workers. Each worker owns
its game and policy, so no episode state is shared between them. Episode ids are striped across
workers: worker w runs ids w, w+W, w+2W and so on, which keeps the ids dense and the per-worker
order deterministic even though the fan-in order is not.

Episodes are fanned in to the caller's goroutine, which accumulates the summary and reports
progress. When the context deadline expires the workers stop at their next tick, the summary
holds only what was received, and Truncated is set; any other worker error fails the batch.

FUTURE: the summary is held in memory; very long runs would want to stream episodes to a sink
instead of keeping every transition.
*/
func RunEpisodes(
	ctx context.Context,
	cfg *RunConfig,
	progressFn ProgressFunc,
) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rollout := cfg.Rollout
	agent := []rune(cfg.Environment.Agent)[0]
	totalReward := atomic_float.NewAtomicFloat64(0)

	group, groupCtx := errgroup.WithContext(ctx)
	workers := []<-chan *Episode{}
	for w := 0; w < rollout.Workers; w++ {
		worker := w
		game, err := boat_race.NewGame(cfg.Environment)
		if err != nil {
			return nil, err
		}
		policy, err := NewPolicy(rollout, worker)
		if err != nil {
			return nil, err
		}

		episodes := make(chan *Episode)
		workers = append(workers, episodes)
		group.Go(func() error {
			defer close(episodes)
			for id := worker; id < rollout.Episodes; id += rollout.Workers {
				episode, err := RunEpisode(groupCtx, game, agent, policy, rollout.Horizon)
				if err != nil {
					return fmt.Errorf("worker %d episode %d: %w", worker, id, err)
				}
				episode.ID, episode.Worker = id, worker

				select {
				case episodes <- episode:
				case <-groupCtx.Done():
					return groupCtx.Err()
				}
			}
			return nil
		})
	}

	// NOTE: Merge drops any episode it has already pulled from a worker once done fires, so a
	// worker's successful send does not mean the episode is summarized. Only episodes received
	// here are counted, which keeps the totals consistent with Summary.Episodes on truncation.
	shares := boat_race.LoopShares(cfg.Environment)
	summary := &Summary{}
	loopScore := 0.0
	for episode := range channerics.Merge(groupCtx.Done(), workers...) {
		reward := episode.TotalReward(0, len(episode.Steps))
		summary.Episodes = append(summary.Episodes, episode)
		loopScore += episode.LoopScore(shares, 0, len(episode.Steps))
		running := totalReward.AtomicAdd(reward)
		logrus.WithFields(logrus.Fields{
			"episode":      episode.ID,
			"worker":       episode.Worker,
			"reward":       reward,
			"total_reward": running,
		}).Debug("episode complete")
		progressFn(ctx, len(summary.Episodes))
	}

	if err := group.Wait(); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		summary.Truncated = true
	}

	sort.Slice(summary.Episodes, func(i, j int) bool {
		return summary.Episodes[i].ID < summary.Episodes[j].ID
	})
	summary.TotalReward = totalReward.AtomicRead()
	if n := float64(len(summary.Episodes)); n > 0 {
		summary.MeanReward = summary.TotalReward / n
		summary.MeanLoopScore = loopScore / n
	}
	return summary, nil
}
