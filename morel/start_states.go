package morel

import (
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

// SampleStartStates draws the start states of the model rollouts of one
// iteration. In "init" mode n initial states are drawn with replacement.
// In "buffer" mode initial states are mixed with states of the dataset,
// split by bufferFrac when given and evenly otherwise.
func SampleStartStates(rng *rand.Rand, mode string, n int, bufferFrac *float64, initStates [][]float64, buffer *types.Transitions) [][]float64 {
	if mode == "init" {
		return choose(rng, initStates, n)
	}
	var fromInit, fromBuffer int
	if bufferFrac != nil {
		fromInit = int(float64(n)*(1-*bufferFrac)) + 1
		fromBuffer = int(float64(n)*(*bufferFrac)) + 1
	} else {
		fromInit, fromBuffer = n/2, n/2
	}
	out := choose(rng, initStates, fromInit)
	for i := 0; i < fromBuffer; i++ {
		out = append(out, buffer.State(rng.Intn(buffer.Len())))
	}
	return out
}

func choose(rng *rand.Rand, states [][]float64, n int) [][]float64 {
	out := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, append([]float64{}, states[rng.Intn(len(states))]...))
	}
	return out
}
