// Package policy contains the stochastic gaussian MLP policy optimized by
// NPG and the behavior cloning pretraining for it.
package policy

import (
	"fmt"
	"math"

	"github.com/zeu5/morel/nn"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const logTwoPi = 1.8378770664093453

// GaussianMLP is a gaussian policy with an MLP mean and a state
// independent log standard deviation.
// The flat parameter vector is [log std..., mean network params...].
type GaussianMLP struct {
	ObsDim    int
	ActDim    int
	Seed      int64
	Mean      *nn.MLP
	LogStd    []float64
	MinLogStd []float64
	InScale   []float64
	InShift   []float64

	rand *rand.Rand
}

func NewGaussianMLP(obsDim, actDim int, hidden []int, initLogStd, minLogStd float64, seed int64) *GaussianMLP {
	rng := rand.New(rand.NewSource(uint64(seed)))
	sizes := append(append([]int{obsDim}, hidden...), actDim)
	mean := nn.NewMLP(sizes, nn.Tanh, rng)
	// small output layer so the initial mean is close to zero
	out := mean.Layers[len(mean.Layers)-1]
	for i := range out.W {
		out.W[i] *= 0.01
	}
	for i := range out.B {
		out.B[i] = 0
	}
	p := &GaussianMLP{
		ObsDim:    obsDim,
		ActDim:    actDim,
		Seed:      seed,
		Mean:      mean,
		LogStd:    fill(actDim, initLogStd),
		MinLogStd: fill(actDim, minLogStd),
		InScale:   fill(obsDim, 1),
		InShift:   fill(obsDim, 0),
		rand:      rng,
	}
	p.clampLogStd()
	return p
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (p *GaussianMLP) random() *rand.Rand {
	if p.rand == nil {
		p.rand = rand.New(rand.NewSource(uint64(p.Seed)))
	}
	return p.rand
}

func (p *GaussianMLP) NumParams() int {
	return p.ActDim + p.Mean.NumParams()
}

func (p *GaussianMLP) Params() []float64 {
	return append(append([]float64{}, p.LogStd...), p.Mean.Params()...)
}

// SetParams loads a flat parameter vector, clamping the log std from below
func (p *GaussianMLP) SetParams(params []float64) {
	if len(params) != p.NumParams() {
		panic(fmt.Sprintf("policy: got %d params, want %d", len(params), p.NumParams()))
	}
	copy(p.LogStd, params[:p.ActDim])
	p.Mean.SetParams(params[p.ActDim:])
	p.clampLogStd()
}

func (p *GaussianMLP) clampLogStd() {
	for i, v := range p.LogStd {
		if v < p.MinLogStd[i] {
			p.LogStd[i] = p.MinLogStd[i]
		}
	}
}

// SetLogStd overrides the exploration level
func (p *GaussianMLP) SetLogStd(v float64) {
	for i := range p.LogStd {
		p.LogStd[i] = v
	}
	p.clampLogStd()
}

func (p *GaussianMLP) SetMinLogStd(v float64) {
	for i := range p.MinLogStd {
		p.MinLogStd[i] = v
	}
	p.clampLogStd()
}

// SetTransformations sets the input normalization (obs - shift) / scale.
// A nil argument keeps the current value.
func (p *GaussianMLP) SetTransformations(inScale, inShift []float64) {
	if inScale != nil {
		if len(inScale) != p.ObsDim {
			panic("policy: in_scale has the wrong size")
		}
		p.InScale = append([]float64{}, inScale...)
	}
	if inShift != nil {
		if len(inShift) != p.ObsDim {
			panic("policy: in_shift has the wrong size")
		}
		p.InShift = append([]float64{}, inShift...)
	}
}

func (p *GaussianMLP) transform(obs mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(obs)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - p.InShift[j]) / (p.InScale[j] + 1e-8)
	}, out)
	return out
}

// MeanActions evaluates the mean action of every observation row
func (p *GaussianMLP) MeanActions(obs mat.Matrix) *mat.Dense {
	return p.Mean.Forward(p.transform(obs))
}

// SampleActions draws one action per observation row with rng
func (p *GaussianMLP) SampleActions(obs mat.Matrix, rng *rand.Rand) *mat.Dense {
	mean := p.MeanActions(obs)
	mean.Apply(func(_, j int, v float64) float64 {
		return v + math.Exp(p.LogStd[j])*rng.NormFloat64()
	}, mean)
	return mean
}

// Act returns a sampled action and the mean action for one observation
func (p *GaussianMLP) Act(obs []float64) (sample, mean []float64) {
	m := p.MeanActions(mat.NewDense(1, p.ObsDim, append([]float64{}, obs...)))
	mean = mat.Row(nil, 0, m)
	sample = make([]float64, p.ActDim)
	rng := p.random()
	for j := range sample {
		sample[j] = mean[j] + math.Exp(p.LogStd[j])*rng.NormFloat64()
	}
	return sample, mean
}

// LogLikelihood of every (obs, act) row
func (p *GaussianMLP) LogLikelihood(obs, act mat.Matrix) []float64 {
	mean := p.MeanActions(obs)
	n, _ := mean.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		ll := 0.0
		for j := 0; j < p.ActDim; j++ {
			z := (act.At(i, j) - mean.At(i, j)) / math.Exp(p.LogStd[j])
			ll += -0.5*z*z - p.LogStd[j] - 0.5*logTwoPi
		}
		out[i] = ll
	}
	return out
}

// LogLikelihoodGrad is the gradient of mean_i(weights_i * loglik_i)
// with respect to the flat parameters
func (p *GaussianMLP) LogLikelihoodGrad(obs, act mat.Matrix, weights []float64) []float64 {
	mean, cache := p.Mean.ForwardCache(p.transform(obs))
	n, _ := mean.Dims()
	if len(weights) != n {
		panic("policy: one weight per sample is required")
	}
	logStdGrad := make([]float64, p.ActDim)
	dOut := mat.NewDense(n, p.ActDim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p.ActDim; j++ {
			std := math.Exp(p.LogStd[j])
			diff := act.At(i, j) - mean.At(i, j)
			z := diff / std
			logStdGrad[j] += weights[i] * (z*z - 1) / float64(n)
			dOut.Set(i, j, weights[i]*diff/(std*std)/float64(n))
		}
	}
	return append(logStdGrad, p.Mean.Backward(cache, dOut)...)
}

// FisherVectorProduct multiplies v by the Fisher information of the
// policy averaged over obs (the hessian of the mean KL).
func (p *GaussianMLP) FisherVectorProduct(obs mat.Matrix, v []float64) []float64 {
	if len(v) != p.NumParams() {
		panic("policy: direction has the wrong size")
	}
	x := p.transform(obs)
	_, cache := p.Mean.ForwardCache(x)
	jv := p.Mean.JVP(x, v[p.ActDim:])
	n, _ := jv.Dims()
	jv.Apply(func(_, j int, val float64) float64 {
		return val * math.Exp(-2*p.LogStd[j]) / float64(n)
	}, jv)
	out := make([]float64, p.ActDim, p.NumParams())
	for j := 0; j < p.ActDim; j++ {
		out[j] = 2 * v[j]
	}
	return append(out, p.Mean.Backward(cache, jv)...)
}

// MeanKL is the average KL(old || new) over the observations
func MeanKL(old, next *GaussianMLP, obs mat.Matrix) float64 {
	oldMean := old.MeanActions(obs)
	newMean := next.MeanActions(obs)
	n, _ := oldMean.Dims()
	if n == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < old.ActDim; j++ {
			oldVar := math.Exp(2 * old.LogStd[j])
			newVar := math.Exp(2 * next.LogStd[j])
			d := oldMean.At(i, j) - newMean.At(i, j)
			total += next.LogStd[j] - old.LogStd[j] + (oldVar+d*d)/(2*newVar) - 0.5
		}
	}
	return total / float64(n)
}

func (p *GaussianMLP) Clone() *GaussianMLP {
	return &GaussianMLP{
		ObsDim:    p.ObsDim,
		ActDim:    p.ActDim,
		Seed:      p.Seed,
		Mean:      p.Mean.Clone(),
		LogStd:    append([]float64{}, p.LogStd...),
		MinLogStd: append([]float64{}, p.MinLogStd...),
		InScale:   append([]float64{}, p.InScale...),
		InShift:   append([]float64{}, p.InShift...),
	}
}
