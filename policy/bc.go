package policy

import (
	"github.com/zeu5/morel/nn"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

// BC pretrains the policy mean to imitate the actions of offline paths
type BC struct {
	Paths     []*types.Path
	Policy    *GaussianMLP
	Epochs    int
	BatchSize int
	LR        float64
}

func NewBC(paths []*types.Path, p *GaussianMLP, epochs, batchSize int) *BC {
	return &BC{
		Paths:     paths,
		Policy:    p,
		Epochs:    epochs,
		BatchSize: batchSize,
		LR:        1e-3,
	}
}

// Train minimizes the squared error between the policy mean and the
// recorded actions. It returns the loss of every epoch.
func (b *BC) Train(rng *rand.Rand) []float64 {
	obs := make([][]float64, 0)
	act := make([][]float64, 0)
	for _, p := range b.Paths {
		obs = append(obs, p.Observations...)
		act = append(act, p.Actions...)
	}
	if len(obs) == 0 {
		return nil
	}
	x := b.Policy.transform(types.Stack(obs))
	return nn.Regress(b.Policy.Mean, x, types.Stack(act), nn.TrainOptions{
		Epochs:    b.Epochs,
		BatchSize: b.BatchSize,
		LR:        b.LR,
	}, rng)
}
