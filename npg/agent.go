// Package npg optimizes a gaussian policy with natural policy gradients
// on rollouts sampled inside a learned dynamics ensemble.
package npg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zeu5/morel/baseline"
	"github.com/zeu5/morel/dynamics"
	"github.com/zeu5/morel/logger"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoPaths is returned when every sampled path diverged
var ErrNoPaths = errors.New("no usable model rollouts")

// Config of the model based NPG agent. Zero values take the defaults.
type Config struct {
	// NormalizedStepSize is the KL step delta
	NormalizedStepSize float64
	Gamma              float64
	GAELambda          float64
	CGIters            int
	Damping            float64
	// HVPFrac is the fraction of samples used for Fisher products
	HVPFrac float64
	NumCPU  int
	Seed    int64
	// TruncateLim enables pessimistic truncation when set
	TruncateLim    *float64
	TruncateReward float64
}

// Agent is the model based NPG learner (the "agent" checkpoint).
type Agent struct {
	Policy   *policy.GaussianMLP
	Baseline *baseline.MLPBaseline
	Models   dynamics.Ensemble
	Config   Config
	Log      *logger.DataLog

	// Iteration counts completed train steps
	Iteration    int
	RunningScore *float64

	rewardFn      types.PathRewarder
	terminationFn types.PathTruncator
	rand          *rand.Rand
}

func NewAgent(models dynamics.Ensemble, p *policy.GaussianMLP, b *baseline.MLPBaseline, config Config) *Agent {
	if len(models) == 0 {
		panic("npg: the agent needs at least one model")
	}
	return &Agent{
		Policy:   p,
		Baseline: b,
		Models:   models,
		Config:   config,
		Log:      logger.NewDataLog(),
	}
}

// SetEnvironmentFunctions installs the environment's reward and
// termination functions. Either may be nil.
// They are not part of the checkpoint and must be set again after loading.
func (a *Agent) SetEnvironmentFunctions(reward types.PathRewarder, termination types.PathTruncator) {
	a.rewardFn = reward
	a.terminationFn = termination
}

func (a *Agent) random() *rand.Rand {
	if a.rand == nil {
		a.rand = rand.New(rand.NewSource(uint64(a.Config.Seed)))
	}
	return a.rand
}

func (a *Agent) gamma() float64 {
	if a.Config.Gamma == 0 {
		return 0.995
	}
	return a.Config.Gamma
}

func (a *Agent) gaeLambda() float64 {
	if a.Config.GAELambda == 0 {
		return 0.97
	}
	return a.Config.GAELambda
}

func (a *Agent) cgIters() int {
	if a.Config.CGIters == 0 {
		return DefaultConjGradIters
	}
	return a.Config.CGIters
}

func (a *Agent) damping() float64 {
	if a.Config.Damping == 0 {
		return 1e-4
	}
	return a.Config.Damping
}

func (a *Agent) hvpFrac() float64 {
	if a.Config.HVPFrac <= 0 || a.Config.HVPFrac > 1 {
		return 1
	}
	return a.Config.HVPFrac
}

func (a *Agent) stepSize() float64 {
	if a.Config.NormalizedStepSize == 0 {
		return 0.05
	}
	return a.Config.NormalizedStepSize
}

// StepOptions of a single train step
type StepOptions struct {
	Horizon int
}

// TrainStats summarizes the model rollouts of a train step
type TrainStats struct {
	MeanReturn    float64
	StdReturn     float64
	MinReturn     float64
	MaxReturn     float64
	NumPaths      int
	NumSamples    int
	TruncatedFrac float64
}

// Score is the train score of the step
func (s TrainStats) Score() float64 {
	return s.MeanReturn
}

// TrainStep samples rollouts in the models from initStates and performs
// one natural gradient update of the policy.
func (a *Agent) TrainStep(ctx context.Context, initStates [][]float64, opts StepOptions) (TrainStats, error) {
	if len(initStates) == 0 {
		return TrainStats{}, errors.New("npg: no start states")
	}
	if opts.Horizon < 1 {
		return TrainStats{}, fmt.Errorf("npg: invalid horizon %d", opts.Horizon)
	}

	start := time.Now()
	seeds := make([]uint64, len(a.Models))
	for m := range seeds {
		seeds[m] = uint64(a.Config.Seed) + uint64(a.Iteration)*uint64(len(a.Models)) + uint64(m)
	}
	learnedReward := a.rewardFn == nil
	perModel, err := modelRollouts(ctx, a.Models, a.Policy, initStates, opts.Horizon, seeds, learnedReward, a.Config.NumCPU)
	if err != nil {
		return TrainStats{}, fmt.Errorf("model rollouts: %w", err)
	}
	paths := make([]*types.Path, 0, len(initStates)*len(a.Models))
	for _, ps := range perModel {
		paths = append(paths, ps...)
	}
	if !learnedReward {
		a.rewardFn.PathRewards(paths)
	}

	kept := paths[:0]
	for _, p := range paths {
		if !diverged(p) {
			kept = append(kept, p)
		}
	}
	paths = kept
	if len(paths) == 0 {
		return TrainStats{}, ErrNoPaths
	}

	truncated := 0
	if a.Config.TruncateLim != nil && len(a.Models) > 1 {
		truncated = truncateUnknown(a.Models, paths, *a.Config.TruncateLim, a.Config.TruncateReward)
	}
	if a.terminationFn != nil {
		paths = a.terminationFn.TruncatePaths(paths)
	}
	a.Log.LogKV("time_sampling", time.Since(start).Seconds())

	stats := a.pathStats(paths)
	stats.TruncatedFrac = float64(truncated) / float64(len(paths))
	a.Log.LogKV("truncated_frac", stats.TruncatedFrac)

	a.update(paths)

	a.Iteration++
	return stats, nil
}

func (a *Agent) pathStats(paths []*types.Path) TrainStats {
	returns := make([]float64, len(paths))
	for i, p := range paths {
		returns[i] = p.Return()
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if len(returns) < 2 {
		std = 0
	}
	s := TrainStats{
		MeanReturn: mean,
		StdReturn:  std,
		MinReturn:  floats.Min(returns),
		MaxReturn:  floats.Max(returns),
		NumPaths:   len(paths),
		NumSamples: types.NumSamples(paths),
	}
	if a.RunningScore == nil {
		a.RunningScore = &mean
	} else {
		running := 0.9*(*a.RunningScore) + 0.1*mean
		a.RunningScore = &running
	}
	a.Log.LogKV("stoc_pol_mean", s.MeanReturn)
	a.Log.LogKV("stoc_pol_std", s.StdReturn)
	a.Log.LogKV("stoc_pol_max", s.MaxReturn)
	a.Log.LogKV("stoc_pol_min", s.MinReturn)
	a.Log.LogKV("num_samples", float64(s.NumSamples))
	a.Log.LogKV("running_score", *a.RunningScore)
	return s
}

// update performs the NPG step on the processed paths and refits the baseline
func (a *Agent) update(paths []*types.Path) {
	gamma := a.gamma()
	returns := baseline.ComputeReturns(paths, gamma)
	advantages := baseline.ComputeAdvantages(paths, a.Baseline, gamma, a.gaeLambda())

	obsRows := make([][]float64, 0)
	actRows := make([][]float64, 0)
	adv := make([]float64, 0)
	for i, p := range paths {
		obsRows = append(obsRows, p.Observations...)
		actRows = append(actRows, p.Actions...)
		adv = append(adv, advantages[i]...)
	}
	obs := types.Stack(obsRows)
	act := types.Stack(actRows)
	mean, std := stat.MeanStdDev(adv, nil)
	if len(adv) < 2 {
		std = 0
	}
	for i := range adv {
		adv[i] = (adv[i] - mean) / (std + 1e-6)
	}

	old := a.Policy.Clone()
	oldLL := old.LogLikelihood(obs, act)
	surrBefore := surrogate(oldLL, oldLL, adv)

	t := time.Now()
	vpg := a.Policy.LogLikelihoodGrad(obs, act, adv)
	a.Log.LogKV("time_vpg", time.Since(t).Seconds())

	t = time.Now()
	hvpObs := a.subsample(obs)
	damping := a.damping()
	npgGrad := ConjugateGradient(func(v []float64) []float64 {
		fv := a.Policy.FisherVectorProduct(hvpObs, v)
		floats.AddScaled(fv, damping, v)
		return fv
	}, vpg, a.cgIters(), 1e-10)
	a.Log.LogKV("time_npg", time.Since(t).Seconds())

	delta := a.stepSize()
	alpha := math.Sqrt(math.Abs(delta / (floats.Dot(vpg, npgGrad) + 1e-10)))
	params := a.Policy.Params()
	floats.AddScaled(params, alpha, npgGrad)
	a.Policy.SetParams(params)

	surrAfter := surrogate(a.Policy.LogLikelihood(obs, act), oldLL, adv)
	kl := policy.MeanKL(old, a.Policy, obs)

	a.Log.LogKV("alpha", alpha)
	a.Log.LogKV("delta", delta)
	a.Log.LogKV("kl_dist", kl)
	a.Log.LogKV("surr_improvement", surrAfter-surrBefore)
	a.Log.LogKV("mean_log_std", stat.Mean(a.Policy.LogStd, nil))

	t = time.Now()
	errBefore, errAfter := a.Baseline.Fit(paths, returns)
	a.Log.LogKV("time_VF", time.Since(t).Seconds())
	a.Log.LogKV("VF_error_before", errBefore)
	a.Log.LogKV("VF_error_after", errAfter)
}

// subsample picks the rows used for Fisher products
func (a *Agent) subsample(obs *mat.Dense) *mat.Dense {
	frac := a.hvpFrac()
	n, _ := obs.Dims()
	if frac >= 1 {
		return obs
	}
	k := int(math.Ceil(frac * float64(n)))
	idx := a.random().Perm(n)[:k]
	rows := make([][]float64, k)
	for i, j := range idx {
		rows[i] = obs.RawRowView(j)
	}
	return types.Stack(rows)
}

// surrogate is mean(exp(ll - oldLL) * adv)
func surrogate(ll, oldLL, adv []float64) float64 {
	sum := 0.0
	for i := range adv {
		sum += math.Exp(ll[i]-oldLL[i]) * adv[i]
	}
	return sum / float64(len(adv))
}
