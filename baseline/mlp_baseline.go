// Package baseline fits the value function used to reduce the variance of
// policy gradient estimates and computes returns and GAE advantages.
package baseline

import (
	"math"

	"github.com/zeu5/morel/nn"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MLPBaseline regresses discounted returns on observation and time features
type MLPBaseline struct {
	ObsDim    int
	Seed      int64
	Net       *nn.MLP
	RegCoef   float64
	BatchSize int
	Epochs    int
	LR        float64

	rand *rand.Rand
}

func NewMLPBaseline(obsDim int, hidden []int, seed int64) *MLPBaseline {
	rng := rand.New(rand.NewSource(uint64(seed)))
	sizes := append(append([]int{obsDim + 4}, hidden...), 1)
	return &MLPBaseline{
		ObsDim:    obsDim,
		Seed:      seed,
		Net:       nn.NewMLP(sizes, nn.ReLU, rng),
		RegCoef:   1e-3,
		BatchSize: 256,
		Epochs:    1,
		LR:        1e-3,
		rand:      rng,
	}
}

func (b *MLPBaseline) random() *rand.Rand {
	if b.rand == nil {
		b.rand = rand.New(rand.NewSource(uint64(b.Seed)))
	}
	return b.rand
}

func (b *MLPBaseline) features(path *types.Path) *mat.Dense {
	n := path.Len()
	f := mat.NewDense(n, b.ObsDim+4, nil)
	for t := 0; t < n; t++ {
		row := f.RawRowView(t)
		for j, v := range path.Observations[t] {
			row[j] = math.Max(-10, math.Min(10, v)) / 10
		}
		al := float64(t) / 1000
		row[b.ObsDim] = al
		row[b.ObsDim+1] = al * al
		row[b.ObsDim+2] = al * al * al
		row[b.ObsDim+3] = 1
	}
	return f
}

// Predict the value of every step of the path
func (b *MLPBaseline) Predict(path *types.Path) []float64 {
	if path.Len() == 0 {
		return nil
	}
	return mat.Col(nil, 0, b.Net.Forward(b.features(path)))
}

// Fit regresses the returns and reports the relative squared error
// before and after fitting
func (b *MLPBaseline) Fit(paths []*types.Path, returns [][]float64) (errBefore, errAfter float64) {
	feats := make([]*mat.Dense, 0, len(paths))
	targets := make([]float64, 0)
	for i, p := range paths {
		if p.Len() == 0 {
			continue
		}
		feats = append(feats, b.features(p))
		targets = append(targets, returns[i]...)
	}
	if len(targets) == 0 {
		return 0, 0
	}
	x := stackRows(feats)
	y := mat.NewDense(len(targets), 1, targets)

	errBefore = relativeError(b.Net.Forward(x), targets)
	nn.Regress(b.Net, x, y, nn.TrainOptions{
		Epochs:      b.Epochs,
		BatchSize:   b.BatchSize,
		LR:          b.LR,
		WeightDecay: b.RegCoef,
	}, b.random())
	errAfter = relativeError(b.Net.Forward(x), targets)
	return errBefore, errAfter
}

func relativeError(pred *mat.Dense, targets []float64) float64 {
	p := mat.Col(nil, 0, pred)
	floats.Sub(p, targets)
	return floats.Dot(p, p) / (floats.Dot(targets, targets) + 1e-8)
}

func stackRows(ms []*mat.Dense) *mat.Dense {
	out := ms[0]
	for _, m := range ms[1:] {
		next := new(mat.Dense)
		next.Stack(out, m)
		out = next
	}
	return out
}

func (b *MLPBaseline) Clone() *MLPBaseline {
	return &MLPBaseline{
		ObsDim:    b.ObsDim,
		Seed:      b.Seed,
		Net:       b.Net.Clone(),
		RegCoef:   b.RegCoef,
		BatchSize: b.BatchSize,
		Epochs:    b.Epochs,
		LR:        b.LR,
	}
}
