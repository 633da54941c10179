package envs

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/morel/types"
)

func rollout(env types.Environment, actions [][]float64) *types.Path {
	path := types.NewPath()
	obs := env.Reset()
	for _, a := range actions {
		next, r, done := env.Step(a)
		path.Append(obs, a, r)
		obs = next
		if done {
			break
		}
	}
	return path
}

func TestMakeUnknown(t *testing.T) {
	_, err := Make("HalfCheetah", 1)
	assert.True(t, errors.Is(err, ErrUnknownEnvironment))
	_, err = Make("dmc_cheetah_run", 1)
	assert.True(t, errors.Is(err, ErrUnknownEnvironment))
}

func TestGymEnvActRepeat(t *testing.T) {
	single, err := Make("PointMass", 1)
	require.NoError(t, err)
	double, err := Make("PointMass", 2)
	require.NoError(t, err)
	assert.Equal(t, 50, single.Horizon())
	assert.Equal(t, 25, double.Horizon())

	single.Seed(4)
	double.Seed(4)
	o1 := single.Reset()
	o2 := double.Reset()
	assert.Equal(t, o1, o2)

	// two single steps equal one repeated step
	a := []float64{0.3, -0.2}
	_, r1, _ := single.Step(a)
	s2, r2, _ := single.Step(a)
	d, rd, _ := double.Step(a)
	assert.InDelta(t, s2[0], d[0], 1e-12)
	assert.InDelta(t, s2[1], d[1], 1e-12)
	assert.InDelta(t, r1+r2, rd, 1e-12)
}

func TestGymEnvClipsActions(t *testing.T) {
	env, err := Make("PointMass", 1)
	require.NoError(t, err)
	env.Seed(1)
	start := env.Reset()
	obs, _, _ := env.Step([]float64{50, 0})
	assert.InDelta(t, math.Min(start[0]+0.1, 1), obs[0], 1e-12)
}

func TestPathRewardsMatchStepRewards(t *testing.T) {
	for _, name := range Names() {
		env, err := Make(name, 1)
		require.NoError(t, err)
		rewarder, ok := env.RewardFunction()
		if !ok {
			continue
		}
		env.Seed(9)
		actions := make([][]float64, 20)
		for i := range actions {
			actions[i] = make([]float64, env.ActionDim())
			for j := range actions[i] {
				actions[i][j] = math.Sin(float64(i + j))
			}
		}
		path := rollout(env, actions)
		want := append([]float64{}, path.Rewards...)
		rewarder.PathRewards([]*types.Path{path})
		for i := range want {
			assert.InDelta(t, want[i], path.Rewards[i], 1e-9, "%s step %d", name, i)
		}
	}
}

func TestCartPoleTruncation(t *testing.T) {
	env, err := Make("ContinuousCartPole", 1)
	require.NoError(t, err)
	truncator, ok := env.TerminationFunction()
	require.True(t, ok)

	path := &types.Path{
		Observations: [][]float64{{0, 0, 0, 0}, {0, 0, 0.1, 0}, {0, 0, 0.5, 0}, {0, 0, 0.6, 0}},
		Actions:      [][]float64{{0}, {0}, {0}, {0}},
		Rewards:      []float64{1, 1, 1, 1},
	}
	truncator.TruncatePaths([]*types.Path{path})
	assert.Equal(t, 3, path.Len())
	assert.True(t, path.Terminated)

	success, ok := env.EvaluateSuccess([]*types.Path{path})
	assert.True(t, ok)
	assert.Equal(t, 0.0, success)
}

func TestPendulumAngleNormalize(t *testing.T) {
	assert.InDelta(t, 0.0, angleNormalize(2*math.Pi), 1e-12)
	assert.InDelta(t, -math.Pi/2, angleNormalize(3*math.Pi/2), 1e-12)
}

func TestDefaultObsMask(t *testing.T) {
	env, err := Make("Pendulum", 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, env.ObsMask())
}

func TestNoRewardFnVariant(t *testing.T) {
	env, err := Make("PointMassNoRewardFn", 1)
	require.NoError(t, err)
	_, ok := env.RewardFunction()
	assert.False(t, ok)
	_, ok = env.EvaluateSuccess(nil)
	assert.False(t, ok)

	plain, err := Make("PointMass", 1)
	require.NoError(t, err)
	env.Seed(4)
	plain.Seed(4)
	assert.Equal(t, plain.Reset(), env.Reset())
	_, r1, _ := plain.Step([]float64{0.3, -0.2})
	_, r2, _ := env.Step([]float64{0.3, -0.2})
	assert.Equal(t, r1, r2)
}

func TestSetObsMask(t *testing.T) {
	env, err := Make("PointMass", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, env.SetObsMask([]float64{2}), ErrObsMask)
	assert.Equal(t, []float64{1, 1}, env.ObsMask())
	require.NoError(t, env.SetObsMask([]float64{2, 4}))
	assert.Equal(t, []float64{2, 4}, env.ObsMask())
}
