// Package envs contains the simulated environments and the gym-like
// wrapper the experiments interact with.
package envs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeu5/morel/types"
)

var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrObsMask            = errors.New("observation mask has the wrong size")
)

var registry = map[string]func() types.Environment{
	"Pendulum":           func() types.Environment { return NewPendulum() },
	"PointMass":          func() types.Environment { return NewPointMass() },
	"ContinuousCartPole": func() types.Environment { return NewContinuousCartPole() },

	// rewards of model rollouts have to be learned from the data
	"PointMassNoRewardFn": func() types.Environment { return stepOnly{NewPointMass()} },
}

// stepOnly exposes only the Environment methods of the wrapped environment
type stepOnly struct {
	types.Environment
}

// Names lists the registered environments
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GymEnv wraps an environment with action repeat and action clipping
type GymEnv struct {
	Name      string
	ActRepeat int
	env       types.Environment
	obsMask   []float64
}

var _ types.Environment = &GymEnv{}

// Make creates the named environment
func Make(name string, actRepeat int) (*GymEnv, error) {
	if strings.HasPrefix(name, "dmc_") {
		return nil, fmt.Errorf("%w: dm_control suites are not available: %s", ErrUnknownEnvironment, name)
	}
	constructor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownEnvironment, name, strings.Join(Names(), ", "))
	}
	return Wrap(name, constructor(), actRepeat), nil
}

// Wrap turns any environment into a GymEnv
func Wrap(name string, env types.Environment, actRepeat int) *GymEnv {
	if actRepeat < 1 {
		actRepeat = 1
	}
	g := &GymEnv{
		Name:      name,
		ActRepeat: actRepeat,
		env:       env,
	}
	if m, ok := env.(types.ObsMasker); ok {
		g.obsMask = append([]float64{}, m.ObsMask()...)
	} else {
		g.obsMask = make([]float64, env.ObservationDim())
		for i := range g.obsMask {
			g.obsMask[i] = 1
		}
	}
	return g
}

func (g *GymEnv) Seed(seed int64)     { g.env.Seed(seed) }
func (g *GymEnv) ObservationDim() int { return g.env.ObservationDim() }
func (g *GymEnv) ActionDim() int      { return g.env.ActionDim() }

// Horizon in wrapped steps
func (g *GymEnv) Horizon() int {
	h := g.env.Horizon() / g.ActRepeat
	if h < 1 {
		h = 1
	}
	return h
}

func (g *GymEnv) Reset() []float64 {
	return g.env.Reset()
}

// Step repeats the clipped action ActRepeat times and sums the rewards
func (g *GymEnv) Step(action []float64) ([]float64, float64, bool) {
	clipped := make([]float64, len(action))
	for i, a := range action {
		clipped[i] = clip(a, -1, 1)
	}
	var obs []float64
	total := 0.0
	done := false
	for i := 0; i < g.ActRepeat; i++ {
		var r float64
		obs, r, done = g.env.Step(clipped)
		total += r
		if done {
			break
		}
	}
	return obs, total, done
}

func (g *GymEnv) ObsMask() []float64 {
	return g.obsMask
}

// SetObsMask overrides the observation scaling used for deployment
func (g *GymEnv) SetObsMask(mask []float64) error {
	if len(mask) != g.ObservationDim() {
		return fmt.Errorf("%w: %d values for %d observations", ErrObsMask, len(mask), g.ObservationDim())
	}
	g.obsMask = append([]float64{}, mask...)
	return nil
}

// RewardFunction is the environment's path reward function, if any
func (g *GymEnv) RewardFunction() (types.PathRewarder, bool) {
	r, ok := g.env.(types.PathRewarder)
	return r, ok
}

// TerminationFunction is the environment's path truncation function, if any
func (g *GymEnv) TerminationFunction() (types.PathTruncator, bool) {
	t, ok := g.env.(types.PathTruncator)
	return t, ok
}

// EvaluateSuccess scores paths with the environment's metric
func (g *GymEnv) EvaluateSuccess(paths []*types.Path) (float64, bool) {
	s, ok := g.env.(types.SuccessEvaluator)
	if !ok {
		return 0, false
	}
	return s.EvaluateSuccess(paths), true
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
