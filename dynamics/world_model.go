// Package dynamics implements the learned world models: residual next-state
// networks with an optional reward head, and ensembles of them.
package dynamics

import (
	"errors"

	"github.com/zeu5/morel/nn"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var ErrNoRewardModel = errors.New("world model has no reward network")

type ModelOptions struct {
	HiddenSize []int
	Activation string
}

type FitOptions struct {
	Epochs    int
	BatchSize int
	LR        float64
	OnEpoch   func(epoch int, loss float64)
}

// WorldModel predicts s' = s + f(s, a) with f fitted in normalized space
type WorldModel struct {
	StateDim int
	ActDim   int
	Seed     int64

	Dynamics *nn.MLP
	Reward   *nn.MLP

	StateNorm  *nn.Standardizer
	ActNorm    *nn.Standardizer
	DeltaNorm  *nn.Standardizer
	RewardNorm *nn.Standardizer

	rand *rand.Rand
}

func NewWorldModel(stateDim, actDim int, opts ModelOptions, seed int64) *WorldModel {
	rng := rand.New(rand.NewSource(uint64(seed)))
	if opts.Activation == "" {
		opts.Activation = nn.ReLU
	}
	sizes := append([]int{stateDim + actDim}, opts.HiddenSize...)
	sizes = append(sizes, stateDim)
	return &WorldModel{
		StateDim:   stateDim,
		ActDim:     actDim,
		Seed:       seed,
		Dynamics:   nn.NewMLP(sizes, opts.Activation, rng),
		StateNorm:  nn.IdentityStandardizer(stateDim),
		ActNorm:    nn.IdentityStandardizer(actDim),
		DeltaNorm:  nn.IdentityStandardizer(stateDim),
		RewardNorm: nn.IdentityStandardizer(1),
		rand:       rng,
	}
}

func (w *WorldModel) random() *rand.Rand {
	if w.rand == nil {
		// restored from a checkpoint
		w.rand = rand.New(rand.NewSource(uint64(w.Seed)))
	}
	return w.rand
}

func (w *WorldModel) inputs(s, a mat.Matrix) *mat.Dense {
	return nn.Concat(w.StateNorm.Transform(s), w.ActNorm.Transform(a))
}

// FitDynamics fits the residual network on (s, a, s') and returns the
// training loss of every epoch
func (w *WorldModel) FitDynamics(s, a, sp *mat.Dense, opts FitOptions) []float64 {
	var delta mat.Dense
	delta.Sub(sp, s)
	w.StateNorm = nn.FitStandardizer(s)
	w.ActNorm = nn.FitStandardizer(a)
	w.DeltaNorm = nn.FitStandardizer(&delta)

	x := w.inputs(s, a)
	y := w.DeltaNorm.Transform(&delta)
	return nn.Regress(w.Dynamics, x, y, nn.TrainOptions{
		Epochs:    opts.Epochs,
		BatchSize: opts.BatchSize,
		LR:        opts.LR,
		OnEpoch:   opts.OnEpoch,
	}, w.random())
}

// ComputeLoss is the mean squared error in the normalized residual space
func (w *WorldModel) ComputeLoss(s, a, sp *mat.Dense) float64 {
	var delta mat.Dense
	delta.Sub(sp, s)
	pred := w.Dynamics.Forward(w.inputs(s, a))
	return nn.MSE(pred, w.DeltaNorm.Transform(&delta))
}

// Predict returns the next state for every (s, a) row
func (w *WorldModel) Predict(s, a mat.Matrix) *mat.Dense {
	out := w.Dynamics.Forward(w.inputs(s, a))
	next := w.DeltaNorm.Inverse(out)
	next.Add(next, s)
	return next
}

// FitReward fits the reward head on (s, a, r)
func (w *WorldModel) FitReward(s, a *mat.Dense, r []float64, opts FitOptions) []float64 {
	target := mat.NewDense(len(r), 1, append([]float64{}, r...))
	w.RewardNorm = nn.FitStandardizer(target)
	if w.Reward == nil {
		sizes := append([]int{}, w.Dynamics.Sizes[:len(w.Dynamics.Sizes)-1]...)
		w.Reward = nn.NewMLP(append(sizes, 1), w.Dynamics.Activation, w.random())
	}
	return nn.Regress(w.Reward, w.inputs(s, a), w.RewardNorm.Transform(target), nn.TrainOptions{
		Epochs:    opts.Epochs,
		BatchSize: opts.BatchSize,
		LR:        opts.LR,
		OnEpoch:   opts.OnEpoch,
	}, w.random())
}

func (w *WorldModel) PredictReward(s, a mat.Matrix) ([]float64, error) {
	if w.Reward == nil {
		return nil, ErrNoRewardModel
	}
	out := w.RewardNorm.Inverse(w.Reward.Forward(w.inputs(s, a)))
	return mat.Col(nil, 0, out), nil
}
