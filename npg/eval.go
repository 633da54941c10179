package npg

import (
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
)

// EvaluatePolicy rolls the policy out in the real environment. With noise
// the sampled action is used, otherwise the mean action.
func EvaluatePolicy(env types.Environment, p *policy.GaussianMLP, episodes int, noise bool) []*types.Path {
	paths := make([]*types.Path, 0, episodes)
	horizon := env.Horizon()
	for e := 0; e < episodes; e++ {
		path := types.NewPath()
		obs := env.Reset()
		for t := 0; t < horizon; t++ {
			sample, mean := p.Act(obs)
			action := mean
			if noise {
				action = sample
			}
			next, reward, done := env.Step(action)
			path.Append(obs, action, reward)
			obs = next
			if done {
				path.Terminated = true
				break
			}
		}
		paths = append(paths, path)
	}
	return paths
}
