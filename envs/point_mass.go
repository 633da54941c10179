package envs

import (
	"math"

	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

const (
	pointMassStep    = 0.1
	pointMassBound   = 1.0
	pointMassHorizon = 50
	pointMassGoalTol = 0.1
)

var pointMassGoal = [2]float64{0.5, 0.5}

// PointMass moves a point in the unit box towards a fixed goal
type PointMass struct {
	X    float64
	Y    float64
	rand *rand.Rand
}

var _ types.Environment = &PointMass{}
var _ types.PathRewarder = &PointMass{}
var _ types.SuccessEvaluator = &PointMass{}

func NewPointMass() *PointMass {
	return &PointMass{rand: rand.New(rand.NewSource(0))}
}

func (p *PointMass) Seed(seed int64) {
	p.rand = rand.New(rand.NewSource(uint64(seed)))
}

func (p *PointMass) ObservationDim() int { return 2 }
func (p *PointMass) ActionDim() int      { return 2 }
func (p *PointMass) Horizon() int        { return pointMassHorizon }

func (p *PointMass) Reset() []float64 {
	p.X = (2*p.rand.Float64() - 1) * pointMassBound
	p.Y = (2*p.rand.Float64() - 1) * pointMassBound
	return []float64{p.X, p.Y}
}

func (p *PointMass) Step(action []float64) ([]float64, float64, bool) {
	reward := -goalDistance(p.X, p.Y)
	p.X = clip(p.X+pointMassStep*clip(action[0], -1, 1), -pointMassBound, pointMassBound)
	p.Y = clip(p.Y+pointMassStep*clip(action[1], -1, 1), -pointMassBound, pointMassBound)
	return []float64{p.X, p.Y}, reward, false
}

func (p *PointMass) PathRewards(paths []*types.Path) {
	for _, path := range paths {
		for t := range path.Rewards {
			obs := path.Observations[t]
			path.Rewards[t] = -goalDistance(obs[0], obs[1])
		}
	}
}

// EvaluateSuccess is the fraction of paths that finish near the goal
func (p *PointMass) EvaluateSuccess(paths []*types.Path) float64 {
	if len(paths) == 0 {
		return 0
	}
	success := 0
	for _, path := range paths {
		if path.Len() == 0 {
			continue
		}
		last := path.Observations[path.Len()-1]
		if goalDistance(last[0], last[1]) < pointMassGoalTol {
			success += 1
		}
	}
	return float64(success) / float64(len(paths))
}

func goalDistance(x, y float64) float64 {
	return math.Hypot(x-pointMassGoal[0], y-pointMassGoal[1])
}
