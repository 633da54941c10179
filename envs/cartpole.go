package envs

import (
	"math"

	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

const (
	cartGravity        = 9.81
	cartMassCart       = 1.0
	cartMassPole       = 0.1
	cartLength         = 0.5
	cartTotalMass      = cartMassCart + cartMassPole
	cartPoleMassLength = cartMassPole * cartLength
	cartForceMax       = 10.0
	cartTau            = 0.02

	cartXThreshold     = 2.4
	cartThetaThreshold = 12.0 * math.Pi / 180.0
	cartHorizon        = 200
)

// ContinuousCartPole balances a pole with a continuous force on the cart.
// Observations are (x, x dot, theta, theta dot).
type ContinuousCartPole struct {
	X        float64
	XDot     float64
	Theta    float64
	ThetaDot float64
	rand     *rand.Rand
}

var _ types.Environment = &ContinuousCartPole{}
var _ types.PathRewarder = &ContinuousCartPole{}
var _ types.PathTruncator = &ContinuousCartPole{}
var _ types.SuccessEvaluator = &ContinuousCartPole{}

func NewContinuousCartPole() *ContinuousCartPole {
	return &ContinuousCartPole{rand: rand.New(rand.NewSource(0))}
}

func (c *ContinuousCartPole) Seed(seed int64) {
	c.rand = rand.New(rand.NewSource(uint64(seed)))
}

func (c *ContinuousCartPole) ObservationDim() int { return 4 }
func (c *ContinuousCartPole) ActionDim() int      { return 1 }
func (c *ContinuousCartPole) Horizon() int        { return cartHorizon }

func (c *ContinuousCartPole) Reset() []float64 {
	c.X = c.rand.Float64()*0.1 - 0.05
	c.XDot = c.rand.Float64()*0.1 - 0.05
	c.Theta = c.rand.Float64()*0.1 - 0.05
	c.ThetaDot = c.rand.Float64()*0.1 - 0.05
	return c.observation()
}

func (c *ContinuousCartPole) Step(action []float64) ([]float64, float64, bool) {
	reward := cartPoleReward(c.observation())
	force := clip(action[0], -1, 1) * cartForceMax

	cosTheta := math.Cos(c.Theta)
	sinTheta := math.Sin(c.Theta)

	temp := (force + cartPoleMassLength*c.ThetaDot*c.ThetaDot*sinTheta) / cartTotalMass
	thetaAcc := (cartGravity*sinTheta - cosTheta*temp) /
		(cartLength * (4.0/3.0 - cartMassPole*cosTheta*cosTheta/cartTotalMass))
	xAcc := temp - cartPoleMassLength*thetaAcc*cosTheta/cartTotalMass
	c.X += cartTau * c.XDot
	c.XDot += cartTau * xAcc
	c.Theta += cartTau * c.ThetaDot
	c.ThetaDot += cartTau * thetaAcc

	obs := c.observation()
	return obs, reward, !cartPoleAlive(obs)
}

func (c *ContinuousCartPole) observation() []float64 {
	return []float64{c.X, c.XDot, c.Theta, c.ThetaDot}
}

func (c *ContinuousCartPole) PathRewards(paths []*types.Path) {
	for _, path := range paths {
		for t := range path.Rewards {
			path.Rewards[t] = cartPoleReward(path.Observations[t])
		}
	}
}

// TruncatePaths cuts every path right after the pole falls
func (c *ContinuousCartPole) TruncatePaths(paths []*types.Path) []*types.Path {
	for _, path := range paths {
		for t, obs := range path.Observations {
			if !cartPoleAlive(obs) {
				path.Truncate(t + 1)
				path.Terminated = true
				break
			}
		}
	}
	return paths
}

// EvaluateSuccess is the fraction of paths where the pole never fell
func (c *ContinuousCartPole) EvaluateSuccess(paths []*types.Path) float64 {
	if len(paths) == 0 {
		return 0
	}
	success := 0
	for _, path := range paths {
		alive := true
		for _, obs := range path.Observations {
			if !cartPoleAlive(obs) {
				alive = false
				break
			}
		}
		if alive {
			success += 1
		}
	}
	return float64(success) / float64(len(paths))
}

func cartPoleAlive(obs []float64) bool {
	return obs[0] >= -cartXThreshold && obs[0] <= cartXThreshold &&
		obs[2] >= -cartThetaThreshold && obs[2] <= cartThetaThreshold
}

func cartPoleReward(obs []float64) float64 {
	if cartPoleAlive(obs) {
		return 1.0
	}
	return 0.0
}
