package nn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"golang.org/x/exp/rand"
)

// TrainOptions configures mini-batch regression with Adam
type TrainOptions struct {
	Epochs    int
	BatchSize int
	LR        float64
	// L2 penalty on the weights, added to the gradient
	WeightDecay float64
	// OnEpoch is invoked with the mean training loss of each epoch
	OnEpoch func(epoch int, loss float64)
}

// MSE returns the mean squared error over all entries
func MSE(pred, target mat.Matrix) float64 {
	var diff mat.Dense
	diff.Sub(pred, target)
	r, c := diff.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		row := diff.RawRowView(i)
		sum += floats.Dot(row, row)
	}
	return sum / float64(r*c)
}

// Regress fits m to map x onto y with the mean squared error loss and
// returns the loss of every epoch.
func Regress(m *MLP, x, y *mat.Dense, opts TrainOptions, rng *rand.Rand) []float64 {
	n, _ := x.Dims()
	batch := opts.BatchSize
	if batch <= 0 || batch > n {
		batch = n
	}
	params := m.Params()
	opt := NewAdam(len(params), opts.LR)
	losses := make([]float64, 0, opts.Epochs)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		perm := rng.Perm(n)
		epochLoss := 0.0
		batches := 0
		for start := 0; start < n; start += batch {
			end := start + batch
			if end > n {
				end = n
			}
			idx := perm[start:end]
			xb := SelectRows(x, idx)
			yb := SelectRows(y, idx)

			pred, cache := m.ForwardCache(xb)
			epochLoss += MSE(pred, yb)
			batches++

			var dOut mat.Dense
			dOut.Sub(pred, yb)
			r, c := dOut.Dims()
			dOut.Scale(2/float64(r*c), &dOut)
			grad := m.Backward(cache, &dOut)
			if opts.WeightDecay > 0 {
				floats.AddScaled(grad, opts.WeightDecay, params)
			}
			opt.Step(params, grad)
			m.SetParams(params)
		}
		loss := epochLoss / float64(batches)
		losses = append(losses, loss)
		if opts.OnEpoch != nil {
			opts.OnEpoch(epoch, loss)
		}
	}
	return losses
}

// SelectRows copies the given rows of x into a new matrix
func SelectRows(x mat.Matrix, idx []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(idx), c, nil)
	row := make([]float64, c)
	for i, j := range idx {
		mat.Row(row, j, x)
		out.SetRow(i, row)
	}
	return out
}

// Concat joins a and b column-wise
func Concat(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Augment(a, b)
	return &out
}
