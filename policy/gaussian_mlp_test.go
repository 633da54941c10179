package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func batch(rng *rand.Rand, n, dim int) *mat.Dense {
	m := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			m.Set(i, j, rng.NormFloat64())
		}
	}
	return m
}

func weightedLL(p *GaussianMLP, obs, act mat.Matrix, w []float64) float64 {
	ll := p.LogLikelihood(obs, act)
	return floats.Dot(ll, w) / float64(len(w))
}

func TestLogLikelihoodGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p := NewGaussianMLP(3, 2, []int{6}, -0.3, -3, 1)
	// non trivial output layer
	params := p.Params()
	for i := range params {
		params[i] += 0.1 * rng.NormFloat64()
	}
	p.SetParams(params)

	obs := batch(rng, 5, 3)
	act := batch(rng, 5, 2)
	w := []float64{1, -0.5, 2, 0.3, -1}

	grad := p.LogLikelihoodGrad(obs, act, w)
	require.Len(t, grad, p.NumParams())
	const eps = 1e-6
	for i := range params {
		orig := params[i]
		params[i] = orig + eps
		p.SetParams(params)
		plus := weightedLL(p, obs, act, w)
		params[i] = orig - eps
		p.SetParams(params)
		minus := weightedLL(p, obs, act, w)
		params[i] = orig
		p.SetParams(params)
		assert.InDelta(t, (plus-minus)/(2*eps), grad[i], 1e-5, "param %d", i)
	}
}

func TestFisherVectorProductIsKLCurvature(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p := NewGaussianMLP(2, 2, []int{5}, -0.5, -3, 3)
	obs := batch(rng, 8, 2)
	v := make([]float64, p.NumParams())
	u := make([]float64, p.NumParams())
	for i := range v {
		v[i] = rng.NormFloat64()
		u[i] = rng.NormFloat64()
	}

	fv := p.FisherVectorProduct(obs, v)
	fu := p.FisherVectorProduct(obs, u)
	assert.InDelta(t, floats.Dot(u, fv), floats.Dot(v, fu), 1e-8)

	const eps = 1e-3
	moved := p.Clone()
	params := p.Params()
	floats.AddScaled(params, eps, v)
	moved.SetParams(params)
	curvature := 2 * MeanKL(p, moved, obs) / (eps * eps)
	assert.InEpsilon(t, floats.Dot(v, fv), curvature, 1e-2)
}

func TestMeanKLOfSelfIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := NewGaussianMLP(2, 1, []int{4}, 0, -2, 1)
	assert.InDelta(t, 0.0, MeanKL(p, p.Clone(), batch(rng, 4, 2)), 1e-12)
}

func TestMinLogStdClamp(t *testing.T) {
	p := NewGaussianMLP(2, 2, []int{4}, -5, -2, 1)
	assert.Equal(t, []float64{-2, -2}, p.LogStd)

	params := p.Params()
	params[0] = -10
	params[1] = -1
	p.SetParams(params)
	assert.Equal(t, []float64{-2, -1}, p.LogStd)

	p.SetMinLogStd(-0.5)
	assert.Equal(t, []float64{-0.5, -0.5}, p.LogStd)
}

func TestTransformationsScaleInputs(t *testing.T) {
	p := NewGaussianMLP(2, 1, []int{4}, 0, -2, 1)
	obs := mat.NewDense(1, 2, []float64{2, 4})
	before := p.MeanActions(obs).At(0, 0)

	p.SetTransformations([]float64{2, 4}, nil)
	scaled := p.MeanActions(mat.NewDense(1, 2, []float64{4, 16})).At(0, 0)
	assert.InDelta(t, before, scaled, 1e-6)
}

func TestBCImitatesActions(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	paths := make([]*types.Path, 0)
	for k := 0; k < 10; k++ {
		path := types.NewPath()
		for i := 0; i < 30; i++ {
			o := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
			path.Append(o, []float64{0.5 * o[0]}, 0)
		}
		paths = append(paths, path)
	}
	p := NewGaussianMLP(2, 1, []int{16}, 0, -2, 1)
	bc := NewBC(paths, p, 20, 256)
	bc.LR = 1e-2
	losses := bc.Train(rng)
	require.Len(t, losses, 20)
	assert.Less(t, losses[19], losses[0])
}
