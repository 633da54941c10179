package types

import (
	"gonum.org/v1/gonum/mat"
)

// Transitions flattens a set of paths into aligned (s, a, s', r) rows
type Transitions struct {
	S  *mat.Dense
	A  *mat.Dense
	SP *mat.Dense
	R  []float64
}

// Flatten builds transitions from s = obs[:-1], a = act[:-1], s' = obs[1:]
// and r = rew[:-1] of every path. Paths shorter than two steps are skipped.
func Flatten(paths []*Path) *Transitions {
	s := make([][]float64, 0)
	a := make([][]float64, 0)
	sp := make([][]float64, 0)
	r := make([]float64, 0)
	for _, p := range paths {
		n := p.Len()
		if n < 2 {
			continue
		}
		s = append(s, p.Observations[:n-1]...)
		a = append(a, p.Actions[:n-1]...)
		sp = append(sp, p.Observations[1:]...)
		r = append(r, p.Rewards[:n-1]...)
	}
	return &Transitions{
		S:  Stack(s),
		A:  Stack(a),
		SP: Stack(sp),
		R:  r,
	}
}

func (t *Transitions) Len() int {
	return len(t.R)
}

// State returns a copy of the i-th start state
func (t *Transitions) State(i int) []float64 {
	_, c := t.S.Dims()
	row := make([]float64, c)
	mat.Row(row, i, t.S)
	return row
}

// BufferSize counts the transitions available in the paths
func BufferSize(paths []*Path) int {
	size := 0
	for _, p := range paths {
		if p.Len() > 0 {
			size += p.Len() - 1
		}
	}
	return size
}

// NumSamples counts every recorded reward
func NumSamples(paths []*Path) int {
	n := 0
	for _, p := range paths {
		n += len(p.Rewards)
	}
	return n
}

func MeanReturn(paths []*Path) float64 {
	if len(paths) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range paths {
		sum += p.Return()
	}
	return sum / float64(len(paths))
}

// InitStates returns the first observation of every path
func InitStates(paths []*Path) [][]float64 {
	out := make([][]float64, 0, len(paths))
	for _, p := range paths {
		if p.Len() == 0 {
			continue
		}
		out = append(out, append([]float64{}, p.Observations[0]...))
	}
	return out
}
