package nn

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const minStd = 1e-6

// Standardizer shifts and scales columns to zero mean and unit variance
type Standardizer struct {
	Mean []float64
	Std  []float64
}

func IdentityStandardizer(dim int) *Standardizer {
	s := &Standardizer{
		Mean: make([]float64, dim),
		Std:  make([]float64, dim),
	}
	for i := range s.Std {
		s.Std[i] = 1
	}
	return s
}

// FitStandardizer computes per-column statistics of x
func FitStandardizer(x mat.Matrix) *Standardizer {
	r, c := x.Dims()
	s := &Standardizer{
		Mean: make([]float64, c),
		Std:  make([]float64, c),
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.MeanStdDev(col, nil)
		if r < 2 || std < minStd {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return s
}

func (s *Standardizer) Transform(x mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(x)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, out)
	return out
}

func (s *Standardizer) Inverse(x mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(x)
	out.Apply(func(_, j int, v float64) float64 {
		return v*s.Std[j] + s.Mean[j]
	}, out)
	return out
}

func (s *Standardizer) Clone() *Standardizer {
	return &Standardizer{
		Mean: append([]float64{}, s.Mean...),
		Std:  append([]float64{}, s.Std...),
	}
}
