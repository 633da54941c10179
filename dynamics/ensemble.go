package dynamics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Ensemble of independently seeded world models
type Ensemble []*WorldModel

// NewEnsemble seeds model i with seed+i
func NewEnsemble(n, stateDim, actDim int, opts ModelOptions, seed int64) Ensemble {
	e := make(Ensemble, n)
	for i := 0; i < n; i++ {
		e[i] = NewWorldModel(stateDim, actDim, opts, seed+int64(i))
	}
	return e
}

// Disagreement is, for every (s, a) row, the largest euclidean distance
// between the predictions of any two members.
func (e Ensemble) Disagreement(s, a mat.Matrix) []float64 {
	n, _ := s.Dims()
	delta := make([]float64, n)
	if len(e) < 2 {
		return delta
	}
	preds := make([]*mat.Dense, len(e))
	for i, m := range e {
		preds[i] = m.Predict(s, a)
	}
	_, dim := preds[0].Dims()
	diff := make([]float64, dim)
	for i := 0; i < len(preds); i++ {
		for j := i + 1; j < len(preds); j++ {
			for row := 0; row < n; row++ {
				floats.SubTo(diff, preds[i].RawRowView(row), preds[j].RawRowView(row))
				if d := floats.Norm(diff, 2); d > delta[row] {
					delta[row] = d
				}
			}
		}
	}
	return delta
}
