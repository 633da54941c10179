// Package nn holds the small dense networks used by the dynamics models,
// the policy and the value baseline.
package nn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	Tanh = "tanh"
	ReLU = "relu"
)

// Layer is a fully connected layer; W is stored In x Out row-major
type Layer struct {
	In  int
	Out int
	W   []float64
	B   []float64
}

func (l *Layer) weights() *mat.Dense {
	return mat.NewDense(l.In, l.Out, l.W)
}

// MLP with a shared hidden activation and a linear output layer
type MLP struct {
	Sizes      []int
	Activation string
	Layers     []*Layer
}

// Cache keeps the intermediate values of a forward pass for Backward
type Cache struct {
	inputs []*mat.Dense
	pre    []*mat.Dense
}

// NewMLP creates a network with the given layer sizes (input first).
// Weights are drawn uniformly in +-1/sqrt(fan_in).
func NewMLP(sizes []int, activation string, rng *rand.Rand) *MLP {
	if len(sizes) < 2 {
		panic("nn: an MLP needs at least an input and an output size")
	}
	if activation != Tanh && activation != ReLU {
		panic(fmt.Sprintf("nn: unknown activation %q", activation))
	}
	m := &MLP{
		Sizes:      append([]int{}, sizes...),
		Activation: activation,
		Layers:     make([]*Layer, len(sizes)-1),
	}
	for i := 0; i < len(sizes)-1; i++ {
		in, out := sizes[i], sizes[i+1]
		bound := 1 / math.Sqrt(float64(in))
		l := &Layer{
			In:  in,
			Out: out,
			W:   make([]float64, in*out),
			B:   make([]float64, out),
		}
		for j := range l.W {
			l.W[j] = (2*rng.Float64() - 1) * bound
		}
		for j := range l.B {
			l.B[j] = (2*rng.Float64() - 1) * bound
		}
		m.Layers[i] = l
	}
	return m
}

func (m *MLP) InputDim() int {
	return m.Sizes[0]
}

func (m *MLP) OutputDim() int {
	return m.Sizes[len(m.Sizes)-1]
}

func (m *MLP) NumParams() int {
	n := 0
	for _, l := range m.Layers {
		n += len(l.W) + len(l.B)
	}
	return n
}

// Params returns a flat copy of all weights, layer by layer (W then B)
func (m *MLP) Params() []float64 {
	out := make([]float64, 0, m.NumParams())
	for _, l := range m.Layers {
		out = append(out, l.W...)
		out = append(out, l.B...)
	}
	return out
}

func (m *MLP) SetParams(p []float64) {
	if len(p) != m.NumParams() {
		panic(fmt.Sprintf("nn: got %d params, want %d", len(p), m.NumParams()))
	}
	off := 0
	for _, l := range m.Layers {
		off += copy(l.W, p[off:off+len(l.W)])
		off += copy(l.B, p[off:off+len(l.B)])
	}
}

func (m *MLP) Clone() *MLP {
	c := &MLP{
		Sizes:      append([]int{}, m.Sizes...),
		Activation: m.Activation,
		Layers:     make([]*Layer, len(m.Layers)),
	}
	for i, l := range m.Layers {
		c.Layers[i] = &Layer{
			In:  l.In,
			Out: l.Out,
			W:   append([]float64{}, l.W...),
			B:   append([]float64{}, l.B...),
		}
	}
	return c
}

// Forward evaluates the network on a batch (one row per sample)
func (m *MLP) Forward(x mat.Matrix) *mat.Dense {
	out, _ := m.forward(x, false)
	return out
}

// ForwardCache evaluates the network and keeps what Backward needs
func (m *MLP) ForwardCache(x mat.Matrix) (*mat.Dense, *Cache) {
	return m.forward(x, true)
}

func (m *MLP) forward(x mat.Matrix, keep bool) (*mat.Dense, *Cache) {
	if _, c := x.Dims(); c != m.InputDim() {
		panic(fmt.Sprintf("nn: input has %d columns, want %d", c, m.InputDim()))
	}
	var cache *Cache
	if keep {
		cache = &Cache{}
	}
	h := mat.DenseCopyOf(x)
	last := len(m.Layers) - 1
	for i, l := range m.Layers {
		z := new(mat.Dense)
		z.Mul(h, l.weights())
		addBias(z, l.B)
		if keep {
			cache.inputs = append(cache.inputs, h)
			cache.pre = append(cache.pre, z)
		}
		if i < last {
			h = m.activate(z)
		} else {
			h = z
		}
	}
	return h, cache
}

// Backward back-propagates dOut (gradient of the loss w.r.t. the outputs)
// and returns the flat parameter gradient in Params order.
func (m *MLP) Backward(cache *Cache, dOut mat.Matrix) []float64 {
	grads := make([][]float64, len(m.Layers))
	delta := mat.DenseCopyOf(dOut)
	for i := len(m.Layers) - 1; i >= 0; i-- {
		l := m.Layers[i]
		dW := new(mat.Dense)
		dW.Mul(cache.inputs[i].T(), delta)
		g := make([]float64, 0, len(l.W)+len(l.B))
		g = append(g, dW.RawMatrix().Data...)
		g = append(g, colSums(delta)...)
		grads[i] = g
		if i == 0 {
			break
		}
		dh := new(mat.Dense)
		dh.Mul(delta, l.weights().T())
		dh.MulElem(dh, m.derivative(cache.pre[i-1]))
		delta = dh
	}
	out := make([]float64, 0, m.NumParams())
	for _, g := range grads {
		out = append(out, g...)
	}
	return out
}

// JVP returns the directional derivative of the outputs on x along the
// flat parameter direction v.
func (m *MLP) JVP(x mat.Matrix, v []float64) *mat.Dense {
	if len(v) != m.NumParams() {
		panic(fmt.Sprintf("nn: direction has %d entries, want %d", len(v), m.NumParams()))
	}
	n, in := x.Dims()
	h := mat.DenseCopyOf(x)
	dh := mat.NewDense(n, in, nil)
	off := 0
	last := len(m.Layers) - 1
	for i, l := range m.Layers {
		vW := mat.NewDense(l.In, l.Out, v[off:off+len(l.W)])
		off += len(l.W)
		vB := v[off : off+len(l.B)]
		off += len(l.B)

		z := new(mat.Dense)
		z.Mul(h, l.weights())
		addBias(z, l.B)

		dz := new(mat.Dense)
		dz.Mul(dh, l.weights())
		hv := new(mat.Dense)
		hv.Mul(h, vW)
		dz.Add(dz, hv)
		addBias(dz, vB)

		if i == last {
			return dz
		}
		h = m.activate(z)
		dz.MulElem(dz, m.derivative(z))
		dh = dz
	}
	return nil
}

func (m *MLP) activate(z *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(z)
	switch m.Activation {
	case Tanh:
		out.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, out)
	case ReLU:
		out.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, out)
	}
	return out
}

func (m *MLP) derivative(z *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(z)
	switch m.Activation {
	case Tanh:
		out.Apply(func(_, _ int, v float64) float64 {
			t := math.Tanh(v)
			return 1 - t*t
		}, out)
	case ReLU:
		out.Apply(func(_, _ int, v float64) float64 {
			if v > 0 {
				return 1
			}
			return 0
		}, out)
	}
	return out
}

func addBias(z *mat.Dense, b []float64) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), b)
	}
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(out, m.RawRowView(i))
	}
	return out
}
