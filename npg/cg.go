package npg

import (
	"gonum.org/v1/gonum/floats"
)

// DefaultConjGradIters is used when an agent has no CG iteration count
const DefaultConjGradIters = 10

// ConjugateGradient approximately solves Ax = b for a symmetric positive
// definite A given only as a matrix-vector product.
func ConjugateGradient(apply func([]float64) []float64, b []float64, iters int, tol float64) []float64 {
	x := make([]float64, len(b))
	residual := append([]float64{}, b...)
	proj := append([]float64{}, b...)
	residualMag := floats.Dot(residual, residual)

	for i := 0; i < iters; i++ {
		if residualMag < tol {
			break
		}
		applied := apply(proj)
		alpha := residualMag / (floats.Dot(proj, applied) + 1e-10)

		floats.AddScaled(x, alpha, proj)
		floats.AddScaled(residual, -alpha, applied)

		newResidualMag := floats.Dot(residual, residual)
		beta := newResidualMag / residualMag
		residualMag = newResidualMag

		// p = r + beta*p
		floats.Scale(beta, proj)
		floats.Add(proj, residual)
	}
	return x
}
