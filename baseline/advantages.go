package baseline

import (
	"github.com/zeu5/morel/types"
)

// DiscountCumsum computes y[t] = sum_k gamma^k x[t+k]
func DiscountCumsum(x []float64, gamma float64) []float64 {
	out := make([]float64, len(x))
	running := 0.0
	for t := len(x) - 1; t >= 0; t-- {
		running = x[t] + gamma*running
		out[t] = running
	}
	return out
}

// ComputeReturns returns the discounted return-to-go of every path step
func ComputeReturns(paths []*types.Path, gamma float64) [][]float64 {
	out := make([][]float64, len(paths))
	for i, p := range paths {
		out[i] = DiscountCumsum(p.Rewards, gamma)
	}
	return out
}

// ComputeAdvantages uses generalized advantage estimation with the
// baseline predictions. Unterminated paths bootstrap from their last value.
func ComputeAdvantages(paths []*types.Path, b *MLPBaseline, gamma, lambda float64) [][]float64 {
	out := make([][]float64, len(paths))
	for i, p := range paths {
		if p.Len() == 0 {
			out[i] = nil
			continue
		}
		values := b.Predict(p)
		last := values[len(values)-1]
		if p.Terminated {
			last = 0
		}
		values = append(values, last)
		td := make([]float64, len(p.Rewards))
		for t, r := range p.Rewards {
			td[t] = r + gamma*values[t+1] - values[t]
		}
		out[i] = DiscountCumsum(td, gamma*lambda)
	}
	return out
}
