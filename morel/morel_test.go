package morel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/morel/checkpoint"
	"github.com/zeu5/morel/config"
	"github.com/zeu5/morel/dataset"
	"github.com/zeu5/morel/envs"
	"github.com/zeu5/morel/npg"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

func tinyBuffer() ([][]float64, *types.Transitions) {
	paths := make([]*types.Path, 0)
	for i := 0; i < 3; i++ {
		p := types.NewPath()
		for t := 0; t < 4; t++ {
			p.Append([]float64{float64(i), float64(t)}, []float64{0}, 0)
		}
		paths = append(paths, p)
	}
	return types.InitStates(paths), types.Flatten(paths)
}

func TestSampleStartStates(t *testing.T) {
	initStates, buffer := tinyBuffer()
	rng := rand.New(rand.NewSource(1))

	starts := SampleStartStates(rng, "init", 10, nil, initStates, buffer)
	assert.Len(t, starts, 10)
	for _, s := range starts {
		assert.Equal(t, 0.0, s[1])
	}

	starts = SampleStartStates(rng, "buffer", 10, nil, initStates, buffer)
	assert.Len(t, starts, 10)

	frac := 0.25
	starts = SampleStartStates(rng, "buffer", 10, &frac, initStates, buffer)
	// int(10*0.75)+1 initial states and int(10*0.25)+1 buffer states
	assert.Len(t, starts, 8+3)
	for _, s := range starts[:8] {
		assert.Equal(t, 0.0, s[1])
	}
}

func TestSampleStartStatesCopies(t *testing.T) {
	initStates, buffer := tinyBuffer()
	starts := SampleStartStates(rand.New(rand.NewSource(1)), "init", 1, nil, initStates, buffer)
	starts[0][0] = 100
	for _, s := range initStates {
		assert.NotEqual(t, 100.0, s[0])
	}
}

func jobFromYAML(t *testing.T, content string) *config.Job {
	file := path.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	job, err := config.Load(file)
	require.NoError(t, err)
	return job
}

func TestTruncationParams(t *testing.T) {
	delta := []float64{0.5, 2, 1}

	job := jobFromYAML(t, "env_name: PointMass\ntruncate_reward: -5\n")
	limit, reward := TruncationParams(job, delta)
	assert.Nil(t, limit)
	assert.Equal(t, 0.0, reward)

	job = jobFromYAML(t, "env_name: PointMass\npessimism_coef: null\ntruncate_reward: -5\n")
	limit, reward = TruncationParams(job, delta)
	assert.Nil(t, limit)
	assert.Equal(t, -5.0, reward)

	job = jobFromYAML(t, "env_name: PointMass\npessimism_coef: 0\n")
	limit, _ = TruncationParams(job, delta)
	assert.Nil(t, limit)

	job = jobFromYAML(t, "env_name: PointMass\npessimism_coef: 4\ntruncate_reward: -5\n")
	limit, reward = TruncationParams(job, delta)
	require.NotNil(t, limit)
	assert.Equal(t, 0.5, *limit)
	assert.Equal(t, -5.0, reward)
}

func writeDataset(t *testing.T, dir string) string {
	env, err := envs.Make("PointMass", 1)
	require.NoError(t, err)
	env.Seed(11)
	paths := dataset.Collect(env, nil, 6, 0, rand.New(rand.NewSource(11)))
	file := path.Join(dir, "data.json")
	require.NoError(t, dataset.Save(file, paths))
	return file
}

const tinyJob = `
env_name: PointMass
seed: 11
data_file: %s
num_models: 2
hidden_size: [16]
fit_epochs: 2
fit_mb_size: 64
policy_size: [8]
step_size: 0.01
num_iter: 3
update_paths: 4
horizon: 10
start_state: buffer
buffer_frac: 0.5
pessimism_coef: 1.0
truncate_reward: -10
bc_init: true
eval_rollouts: 1
save_freq: 1
`

func TestRunProducesArtifacts(t *testing.T) {
	root := t.TempDir()
	job := jobFromYAML(t, fmt.Sprintf(tinyJob, writeDataset(t, root)))

	exp := NewExperiment(job, Options{Output: "tiny", LogRoot: root, Out: io.Discard})
	require.NoError(t, exp.Run(context.Background()))

	dir := exp.Dir()
	for _, f := range []string{
		"job_data.json",
		checkpoint.ModelsFile,
		"iterations/" + checkpoint.AgentFile("1"),
		"iterations/" + checkpoint.PolicyFile("1"),
		"iterations/" + checkpoint.AgentFile("2"),
		"iterations/" + checkpoint.BestPolicy,
		"iterations/" + checkpoint.AgentFile("final"),
		"iterations/" + checkpoint.PolicyFile("final"),
		"logs/log.csv",
		"logs/log.json",
		"logs/progress.txt",
		"logs/rollout_score.png",
		"logs/eval_score.png",
	} {
		_, err := os.Stat(path.Join(dir, f))
		assert.NoError(t, err, f)
	}
	_, err := os.Stat(path.Join(dir, "iterations", checkpoint.AgentFile("0")))
	assert.True(t, os.IsNotExist(err))

	bs, err := os.ReadFile(path.Join(dir, "job_data.json"))
	require.NoError(t, err)
	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(bs, &saved))
	assert.Equal(t, 11.0, saved["seed"])
	assert.Equal(t, 11.0, saved["base_seed"])
	assert.Equal(t, -10.0, saved["truncate_reward"])
	assert.Greater(t, saved["truncate_lim"], 0.0)
	assert.Equal(t, false, saved["learn_reward"])

	var logged map[string][]float64
	bs, err = os.ReadFile(path.Join(dir, "logs", "log.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bs, &logged))
	for _, key := range []string{"fit_epochs", "rollout_score", "iter_samples", "num_samples", "rollout_metric", "dyn_loss_0",
		"dyn_loss_gen_1", "model_learning_time", "act_repeat", "eval_metric", "iter_time", "alpha", "truncated_frac"} {
		assert.Contains(t, logged, key)
	}
	assert.Len(t, logged["train_score"], 3)
	assert.NotContains(t, logged, "rew_loss_0")

	var agent npg.Agent
	require.NoError(t, checkpoint.Load(path.Join(dir, "iterations", checkpoint.AgentFile("final")), &agent))
	assert.Equal(t, 3, agent.Iteration)
	require.NotNil(t, agent.Config.TruncateLim)
	assert.Equal(t, -10.0, agent.Config.TruncateReward)
}

func TestRunFromSavedModels(t *testing.T) {
	root := t.TempDir()
	data := writeDataset(t, root)
	first := NewExperiment(jobFromYAML(t, fmt.Sprintf(tinyJob, data)), Options{Output: "first", LogRoot: root, Out: io.Discard})
	require.NoError(t, first.Run(context.Background()))

	models := path.Join(first.Dir(), checkpoint.ModelsFile)
	pol := path.Join(first.Dir(), "iterations", checkpoint.PolicyFile("final"))
	cfg := fmt.Sprintf(tinyJob, data) + fmt.Sprintf("model_file: %s\ninit_policy: %s\ninit_log_std: -1.0\n", models, pol)
	second := NewExperiment(jobFromYAML(t, cfg), Options{Output: "second", LogRoot: root, Out: io.Discard})
	require.NoError(t, second.Run(context.Background()))

	var logged map[string][]float64
	bs, err := os.ReadFile(path.Join(second.Dir(), "logs", "log.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bs, &logged))
	assert.Contains(t, logged, "dyn_loss_gen_0")
	assert.NotContains(t, logged, "dyn_loss_0")

	var final policy.GaussianMLP
	require.NoError(t, checkpoint.Load(path.Join(second.Dir(), "iterations", checkpoint.PolicyFile("final")), &final))
	assert.Equal(t, 2, final.ObsDim)
}

func TestRunRejectsInvalidJob(t *testing.T) {
	root := t.TempDir()
	job := jobFromYAML(t, "env_name: PointMass\nseed: 1\n")
	err := NewExperiment(job, Options{Output: "bad", LogRoot: root, Out: io.Discard}).Run(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingKey)

	job = jobFromYAML(t, fmt.Sprintf(tinyJob, writeDataset(t, root)))
	job.EnvName = "dmc_walker_walk"
	err = NewExperiment(job, Options{Output: "dmc", LogRoot: root, Out: io.Discard}).Run(context.Background())
	assert.ErrorIs(t, err, envs.ErrUnknownEnvironment)
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	job := jobFromYAML(t, fmt.Sprintf(tinyJob, writeDataset(t, root)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewExperiment(job, Options{Output: "cancel", LogRoot: root, Out: io.Discard}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunLearnsRewardAndScalesFinalPolicy(t *testing.T) {
	root := t.TempDir()
	cfg := fmt.Sprintf(tinyJob, writeDataset(t, root)) + "obs_mask: [2, 4]\n"
	job := jobFromYAML(t, cfg)
	job.EnvName = "PointMassNoRewardFn"
	exp := NewExperiment(job, Options{Output: "learned", LogRoot: root, Out: io.Discard})
	require.NoError(t, exp.Run(context.Background()))
	assert.True(t, *job.LearnReward)

	var logged map[string][]float64
	bs, err := os.ReadFile(path.Join(exp.Dir(), "logs", "log.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bs, &logged))
	assert.Contains(t, logged, "rew_loss_0")
	assert.Contains(t, logged, "rew_loss_1")
	assert.Len(t, logged["train_score"], 3)

	var final policy.GaussianMLP
	require.NoError(t, checkpoint.Load(path.Join(exp.Dir(), "iterations", checkpoint.PolicyFile("final")), &final))
	assert.Equal(t, []float64{0.5, 0.25}, final.InScale)

	var best policy.GaussianMLP
	require.NoError(t, checkpoint.Load(path.Join(exp.Dir(), "iterations", checkpoint.BestPolicy), &best))
	assert.Equal(t, []float64{0.5, 0.25}, best.InScale)
}

func TestRunRejectsMismatchedDataset(t *testing.T) {
	root := t.TempDir()
	paths := make([]*types.Path, 0)
	for i := 0; i < 2; i++ {
		p := types.NewPath()
		for step := 0; step < 3; step++ {
			p.Append([]float64{0, float64(step)}, []float64{0.1}, 0)
		}
		paths = append(paths, p)
	}
	file := path.Join(root, "one_dim_actions.json")
	require.NoError(t, dataset.Save(file, paths))
	job := jobFromYAML(t, fmt.Sprintf(tinyJob, file))
	err := NewExperiment(job, Options{Output: "actions", LogRoot: root, Out: io.Discard}).Run(context.Background())
	assert.ErrorIs(t, err, dataset.ErrShape)

	ragged := path.Join(root, "ragged.json")
	require.NoError(t, os.WriteFile(ragged, []byte(`[{"observations": [[0, 0], [1]], "actions": [[0, 0], [0, 0]], "rewards": [0, 0]}]`), 0644))
	job = jobFromYAML(t, fmt.Sprintf(tinyJob, ragged))
	err = NewExperiment(job, Options{Output: "ragged", LogRoot: root, Out: io.Discard}).Run(context.Background())
	assert.ErrorIs(t, err, dataset.ErrShape)

	job = jobFromYAML(t, fmt.Sprintf(tinyJob, writeDataset(t, root))+"obs_mask: [1, 1, 1]\n")
	err = NewExperiment(job, Options{Output: "mask", LogRoot: root, Out: io.Discard}).Run(context.Background())
	assert.ErrorIs(t, err, envs.ErrObsMask)
}
