package envs

import (
	"math"

	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

const (
	pendulumGravity   = 10.0
	pendulumMass      = 1.0
	pendulumLength    = 1.0
	pendulumDt        = 0.05
	pendulumMaxSpeed  = 8.0
	pendulumMaxTorque = 2.0
	pendulumHorizon   = 200
)

// Pendulum is the torque limited swing-up task.
// Observations are (cos theta, sin theta, theta dot).
type Pendulum struct {
	Theta    float64
	ThetaDot float64
	rand     *rand.Rand
}

var _ types.Environment = &Pendulum{}
var _ types.PathRewarder = &Pendulum{}
var _ types.SuccessEvaluator = &Pendulum{}

func NewPendulum() *Pendulum {
	return &Pendulum{rand: rand.New(rand.NewSource(0))}
}

func (p *Pendulum) Seed(seed int64) {
	p.rand = rand.New(rand.NewSource(uint64(seed)))
}

func (p *Pendulum) ObservationDim() int { return 3 }
func (p *Pendulum) ActionDim() int      { return 1 }
func (p *Pendulum) Horizon() int        { return pendulumHorizon }

func (p *Pendulum) Reset() []float64 {
	p.Theta = (2*p.rand.Float64() - 1) * math.Pi
	p.ThetaDot = 2*p.rand.Float64() - 1
	return p.observation()
}

func (p *Pendulum) Step(action []float64) ([]float64, float64, bool) {
	u := clip(action[0], -1, 1) * pendulumMaxTorque
	reward := pendulumReward(p.Theta, p.ThetaDot, u)

	newThetaDot := p.ThetaDot + (3*pendulumGravity/(2*pendulumLength)*math.Sin(p.Theta)+
		3/(pendulumMass*pendulumLength*pendulumLength)*u)*pendulumDt
	newThetaDot = clip(newThetaDot, -pendulumMaxSpeed, pendulumMaxSpeed)
	p.Theta += newThetaDot * pendulumDt
	p.ThetaDot = newThetaDot
	return p.observation(), reward, false
}

func (p *Pendulum) observation() []float64 {
	return []float64{math.Cos(p.Theta), math.Sin(p.Theta), p.ThetaDot}
}

// PathRewards recovers the reward from (cos, sin, theta dot) and the torque
func (p *Pendulum) PathRewards(paths []*types.Path) {
	for _, path := range paths {
		for t := range path.Rewards {
			obs := path.Observations[t]
			theta := math.Atan2(obs[1], obs[0])
			u := clip(path.Actions[t][0], -1, 1) * pendulumMaxTorque
			path.Rewards[t] = pendulumReward(theta, obs[2], u)
		}
	}
}

// EvaluateSuccess is the fraction of paths that end upright
func (p *Pendulum) EvaluateSuccess(paths []*types.Path) float64 {
	if len(paths) == 0 {
		return 0
	}
	success := 0
	for _, path := range paths {
		if path.Len() == 0 {
			continue
		}
		last := path.Observations[path.Len()-1]
		if last[0] > 0.9 {
			success += 1
		}
	}
	return float64(success) / float64(len(paths))
}

func pendulumReward(theta, thetaDot, u float64) float64 {
	th := angleNormalize(theta)
	return -(th*th + 0.1*thetaDot*thetaDot + 0.001*u*u)
}

func angleNormalize(x float64) float64 {
	return math.Mod(math.Mod(x+math.Pi, 2*math.Pi)+2*math.Pi, 2*math.Pi) - math.Pi
}
