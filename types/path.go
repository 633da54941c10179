package types

import (
	"gonum.org/v1/gonum/mat"
)

// Path is a single trajectory as aligned sequences of
// observations, actions and rewards.
type Path struct {
	Observations [][]float64 `json:"observations"`
	Actions      [][]float64 `json:"actions"`
	Rewards      []float64   `json:"rewards"`
	Terminated   bool        `json:"terminated"`
}

func NewPath() *Path {
	return &Path{
		Observations: make([][]float64, 0),
		Actions:      make([][]float64, 0),
		Rewards:      make([]float64, 0),
	}
}

func (p *Path) Append(obs, action []float64, reward float64) {
	p.Observations = append(p.Observations, obs)
	p.Actions = append(p.Actions, action)
	p.Rewards = append(p.Rewards, reward)
}

func (p *Path) Len() int {
	return len(p.Observations)
}

// Return is the undiscounted sum of rewards
func (p *Path) Return() float64 {
	sum := 0.0
	for _, r := range p.Rewards {
		sum += r
	}
	return sum
}

// Truncate keeps the first t steps of the path
func (p *Path) Truncate(t int) {
	if t >= p.Len() {
		return
	}
	p.Observations = p.Observations[:t]
	p.Actions = p.Actions[:t]
	p.Rewards = p.Rewards[:t]
}

// ObservationMatrix stacks observations [from, to) row-wise
func (p *Path) ObservationMatrix(from, to int) *mat.Dense {
	return Stack(p.Observations[from:to])
}

// ActionMatrix stacks actions [from, to) row-wise
func (p *Path) ActionMatrix(from, to int) *mat.Dense {
	return Stack(p.Actions[from:to])
}

// Stack copies equally sized rows into a dense matrix
func Stack(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for _, r := range rows {
		if len(r) != cols {
			panic("types: ragged rows")
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), cols, data)
}
