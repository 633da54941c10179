package npg

import (
	"context"
	"math"

	"github.com/zeu5/morel/dynamics"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// observations beyond this magnitude mark a diverged model rollout
const divergenceBound = 1e4

// modelRollouts samples one path per start state in every ensemble member.
// Member m draws its actions from its own generator seeded with seeds[m].
// Without a reward function the rewards come from the member's reward head.
func modelRollouts(ctx context.Context, models dynamics.Ensemble, p *policy.GaussianMLP, initStates [][]float64,
	horizon int, seeds []uint64, learnedReward bool, numCPU int) ([][]*types.Path, error) {

	out := make([][]*types.Path, len(models))
	g, ctx := errgroup.WithContext(ctx)
	if numCPU < 1 {
		numCPU = 1
	}
	g.SetLimit(numCPU)
	for m := range models {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[m]))
			paths, err := rollout(models[m], p, initStates, horizon, rng, learnedReward)
			if err != nil {
				return err
			}
			out[m] = paths
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func rollout(model *dynamics.WorldModel, p *policy.GaussianMLP, initStates [][]float64, horizon int,
	rng *rand.Rand, learnedReward bool) ([]*types.Path, error) {

	paths := make([]*types.Path, len(initStates))
	for i := range paths {
		paths[i] = types.NewPath()
	}
	obs := types.Stack(initStates)
	for t := 0; t < horizon; t++ {
		act := p.SampleActions(obs, rng)
		act.Apply(func(_, _ int, v float64) float64 {
			return math.Max(-1, math.Min(1, v))
		}, act)

		rewards := make([]float64, len(initStates))
		if learnedReward {
			r, err := model.PredictReward(obs, act)
			if err != nil {
				return nil, err
			}
			rewards = r
		}
		next := model.Predict(obs, act)
		for i, path := range paths {
			path.Append(mat.Row(nil, i, obs), mat.Row(nil, i, act), rewards[i])
		}
		obs = next
	}
	return paths, nil
}

// diverged reports whether a path left the region where the models are usable
func diverged(path *types.Path) bool {
	for _, obs := range path.Observations {
		for _, v := range obs {
			if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > divergenceBound {
				return true
			}
		}
	}
	for _, r := range path.Rewards {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return true
		}
	}
	return false
}

// minTruncatedLen is the shortest path kept by pessimistic truncation
const minTruncatedLen = 4

// truncateUnknown cuts each path after the first transition where the
// ensemble disagreement exceeds limit and adds penalty to its final reward.
// The last (s, a) of a path has no successor in it and is not measured.
// It returns the number of paths that were cut.
func truncateUnknown(models dynamics.Ensemble, paths []*types.Path, limit, penalty float64) int {
	truncated := 0
	for _, path := range paths {
		if path.Len() < 2 {
			continue
		}
		n := path.Len() - 1
		errs := models.Disagreement(path.ObservationMatrix(0, n), path.ActionMatrix(0, n))
		cut := -1
		for t, e := range errs {
			if e > limit {
				cut = t + 1
				break
			}
		}
		if cut < 0 {
			continue
		}
		if cut < minTruncatedLen {
			cut = minTruncatedLen
		}
		path.Truncate(cut)
		path.Rewards[len(path.Rewards)-1] += penalty
		path.Terminated = true
		truncated++
	}
	return truncated
}
