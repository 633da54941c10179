// Package morel runs model based offline policy optimization experiments:
// it fits a dynamics ensemble on an offline dataset and optimizes a policy
// inside a pessimistic version of the learned models.
package morel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/zeu5/morel/baseline"
	"github.com/zeu5/morel/checkpoint"
	"github.com/zeu5/morel/config"
	"github.com/zeu5/morel/dataset"
	"github.com/zeu5/morel/dynamics"
	"github.com/zeu5/morel/envs"
	"github.com/zeu5/morel/logger"
	"github.com/zeu5/morel/monitor"
	"github.com/zeu5/morel/npg"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"github.com/zeu5/morel/util"
	"golang.org/x/exp/rand"
)

const (
	// score every policy beats
	initialBestScore = -1e8
	bcEpochs         = 5
	bcBatchSize      = 256
)

var baselineHidden = []int{128, 128}

// Options of an experiment run that are not part of the job file
type Options struct {
	// Output is the experiment name, the directory under LogRoot
	Output  string
	LogRoot string
	// Serve is the listen address of the monitor server, empty to disable
	Serve string
	// Out receives the tables and progress bars
	Out io.Writer
}

type Experiment struct {
	Job     *config.Job
	Options Options
	RunID   string

	dir     string
	iterDir string
	logDir  string
}

func NewExperiment(job *config.Job, opts Options) *Experiment {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.LogRoot == "" {
		opts.LogRoot = "./logging_policy"
	}
	dir := path.Join(opts.LogRoot, opts.Output)
	return &Experiment{
		Job:     job,
		Options: opts,
		RunID:   uuid.NewString(),
		dir:     dir,
		iterDir: path.Join(dir, "iterations"),
		logDir:  path.Join(dir, "logs"),
	}
}

// Dir is the output directory of the experiment
func (e *Experiment) Dir() string {
	return e.dir
}

func (e *Experiment) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.Options.Out, format, args...)
}

// Run executes the whole experiment
func (e *Experiment) Run(ctx context.Context) error {
	job := e.Job
	if e.Options.Output == "" {
		return errors.New("experiment needs an output name")
	}
	if err := util.MakeDirs(e.dir, e.iterDir, e.logDir); err != nil {
		return err
	}
	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return err
	}
	jobFile := path.Join(e.dir, "job_data.json")
	if err := job.Persist(jobFile); err != nil {
		return err
	}
	seed := job.SeedValue()
	job.BaseSeed = &seed

	slog.Info("starting experiment", "run_id", e.RunID, "env", job.EnvName, "output", e.dir)
	rng := rand.New(rand.NewSource(uint64(seed)))

	env, err := envs.Make(job.EnvName, job.ActRepeat)
	if err != nil {
		return err
	}
	env.Seed(seed)
	if len(job.ObsMask) > 0 {
		if err := env.SetObsMask(job.ObsMask); err != nil {
			return err
		}
	}
	rewardFn, hasReward := env.RewardFunction()
	terminationFn, _ := env.TerminationFunction()
	// an explicit learn_reward: true replaces the environment's reward function
	learnReward := !hasReward || (job.Has("learn_reward") && *job.LearnReward)
	if learnReward {
		rewardFn = nil
	}
	job.LearnReward = &learnReward

	models, trained, err := e.buildModels(env)
	if err != nil {
		return err
	}
	pol, err := e.buildPolicy(env)
	if err != nil {
		return err
	}
	agent := npg.NewAgent(models, pol, baseline.NewMLPBaseline(env.ObservationDim(), baselineHidden, seed), npg.Config{
		NormalizedStepSize: job.StepSize,
		Gamma:              job.NPGHP.Gamma,
		GAELambda:          job.NPGHP.GAELambda,
		CGIters:            job.NPGHP.CGIters,
		Damping:            job.NPGHP.Damping,
		HVPFrac:            job.HVPFrac,
		NumCPU:             job.NumCPU,
		Seed:               seed,
	})
	agent.SetEnvironmentFunctions(rewardFn, terminationFn)

	paths, err := dataset.Load(job.DataFile)
	if err != nil {
		return err
	}
	if types.BufferSize(paths) == 0 {
		return fmt.Errorf("%w: no transitions in %s", dataset.ErrEmptyDataset, job.DataFile)
	}
	buffer := types.Flatten(paths)
	if _, c := buffer.S.Dims(); c != env.ObservationDim() {
		return fmt.Errorf("%w: observations have %d dimensions, %s has %d", dataset.ErrShape, c, job.EnvName, env.ObservationDim())
	}
	if _, c := buffer.A.Dims(); c != env.ActionDim() {
		return fmt.Errorf("%w: actions have %d dimensions, %s has %d", dataset.ErrShape, c, job.EnvName, env.ActionDim())
	}
	initStates := types.InitStates(paths)

	log := logger.NewDataLog()
	rolloutScore := types.MeanReturn(paths)
	log.LogKV("fit_epochs", float64(job.FitEpochs))
	log.LogKV("rollout_score", rolloutScore)
	// num_samples is logged by the agent every iteration, a second
	// series under the same key would shift the rows
	log.LogKV("iter_samples", float64(types.NumSamples(paths)))
	if metric, ok := env.EvaluateSuccess(paths); ok {
		log.LogKV("rollout_metric", metric)
	}

	start := time.Now()
	e.fitModels(models, trained, buffer, log)
	log.LogKV("model_learning_time", time.Since(start).Seconds())
	e.printf("Model learning statistics\n")
	logger.PrintTable(e.Options.Out, log.CurrentLog())
	if err := checkpoint.Save(path.Join(e.dir, checkpoint.ModelsFile), models); err != nil {
		return err
	}
	log.LogKV("act_repeat", float64(job.ActRepeat))

	delta := models.Disagreement(buffer.S, buffer.A)
	limit, penalty := TruncationParams(job, delta)
	if job.Has("pessimism_coef") {
		if limit == nil {
			e.printf("No pessimism used. Running naive MBRL.\n")
		} else {
			e.printf("Maximum error before truncation (i.e. unknown region threshold) = %f\n", *limit)
		}
	}
	job.SetTruncation(limit, penalty)
	agent.Config.TruncateLim = limit
	agent.Config.TruncateReward = penalty
	if err := job.Persist(jobFile); err != nil {
		return err
	}

	if job.BCInit {
		losses := policy.NewBC(paths, pol, bcEpochs, bcBatchSize).Train(rng)
		slog.Info("behavior cloning done", "loss", losses[len(losses)-1])
	}

	var sink logger.Sink
	if job.RedisAddr != "" {
		rs := logger.NewRedisSink(job.RedisAddr, job.RedisStream)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return fmt.Errorf("connect to redis %s: %w", job.RedisAddr, err)
		}
		defer rs.Close()
		sink = rs
	}
	var server *monitor.Server
	if e.Options.Serve != "" {
		server = monitor.NewServer(ctx, e.Options.Serve, e.RunID, job.EnvName, job.NumIter)
		if err := server.Start(); err != nil {
			return err
		}
		slog.Info("serving progress", "addr", e.Options.Serve)
	}

	bestScore := initialBestScore
	bestPolicy := pol.Clone()
	for iter := 0; iter < job.NumIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ts := time.Now()
		if job.StartState == "init" {
			slog.Debug("sampling from initial state distribution")
		} else {
			slog.Debug("sampling from mix of initial states and data buffer")
		}
		starts := SampleStartStates(rng, job.StartState, job.UpdatePaths, job.BufferFrac, initStates, buffer)
		stats, err := agent.TrainStep(ctx, starts, npg.StepOptions{Horizon: job.Horizon})
		if err != nil {
			return fmt.Errorf("iteration %d: %w", iter, err)
		}
		log.LogKV("train_score", stats.Score())

		evalScore := initialBestScore
		if job.EvalRollouts > 0 {
			slog.Debug("performing validation rollouts")
			evalPaths := npg.EvaluatePolicy(env, pol, job.EvalRollouts, false)
			evalScore = types.MeanReturn(evalPaths)
			log.LogKV("eval_score", evalScore)
			if metric, ok := env.EvaluateSuccess(evalPaths); ok {
				log.LogKV("eval_metric", metric)
			}
		}

		policyScore := rolloutScore
		if job.EvalRollouts > 0 {
			policyScore = evalScore
		}
		if policyScore > bestScore {
			bestPolicy = pol.Clone()
			bestScore = policyScore
		}

		log.LogKV("iter_time", time.Since(ts).Seconds())
		for _, key := range agent.Log.Keys() {
			v, _ := agent.Log.Last(key)
			log.LogKV(key, v)
		}
		row := log.CurrentLogPrint()
		logger.PrintTable(e.Options.Out, row)
		if err := log.SaveLog(e.logDir); err != nil {
			return err
		}
		if err := util.AppendToFile(path.Join(e.logDir, "progress.txt"),
			fmt.Sprintf("iteration %d train_score %f best_score %f", iter, stats.Score(), bestScore)); err != nil {
			return err
		}
		if sink != nil {
			if err := sink.Publish(ctx, iter, row); err != nil {
				return err
			}
		}
		if server != nil {
			server.Update(iter, bestScore, row, log.Log)
		}

		if iter > 0 && iter%job.SaveFreq == 0 {
			tag := strconv.Itoa(iter)
			err := e.withObsMask(env, []*policy.GaussianMLP{pol, bestPolicy}, func() error {
				if err := checkpoint.Save(path.Join(e.iterDir, checkpoint.AgentFile(tag)), agent); err != nil {
					return err
				}
				if err := checkpoint.Save(path.Join(e.iterDir, checkpoint.PolicyFile(tag)), pol); err != nil {
					return err
				}
				return checkpoint.Save(path.Join(e.iterDir, checkpoint.BestPolicy), bestPolicy)
			})
			if err != nil {
				return err
			}
			keys := []string{"rollout_score", "eval_score", "rollout_metric", "eval_metric"}
			if err := logger.MakeTrainPlots(log, keys, float64(job.ActRepeat), 1.0, e.logDir); err != nil {
				return err
			}
		}
	}

	if err := checkpoint.Save(path.Join(e.iterDir, checkpoint.AgentFile("final")), agent); err != nil {
		return err
	}
	pol.SetTransformations(inverse(env.ObsMask()), nil)
	if err := checkpoint.Save(path.Join(e.iterDir, checkpoint.PolicyFile("final")), pol); err != nil {
		return err
	}
	if server != nil {
		server.Finish()
	}
	e.printf("Running: I am done!\n")
	return nil
}

func (e *Experiment) buildModels(env *envs.GymEnv) (dynamics.Ensemble, bool, error) {
	job := e.Job
	if job.ModelFile != nil {
		var models dynamics.Ensemble
		if err := checkpoint.Load(*job.ModelFile, &models); err != nil {
			return nil, false, err
		}
		if len(models) == 0 {
			return nil, false, fmt.Errorf("model file %s has no models", *job.ModelFile)
		}
		for _, m := range models {
			if m.StateDim != env.ObservationDim() || m.ActDim != env.ActionDim() {
				return nil, false, fmt.Errorf("model file %s does not match %s", *job.ModelFile, job.EnvName)
			}
		}
		return models, true, nil
	}
	opts := dynamics.ModelOptions{
		HiddenSize: job.HiddenSize,
		Activation: job.Activation,
	}
	return dynamics.NewEnsemble(job.NumModels, env.ObservationDim(), env.ActionDim(), opts, job.SeedValue()), false, nil
}

func (e *Experiment) buildPolicy(env *envs.GymEnv) (*policy.GaussianMLP, error) {
	job := e.Job
	if job.InitPolicy == nil {
		return policy.NewGaussianMLP(env.ObservationDim(), env.ActionDim(), job.PolicySize,
			*job.InitLogStd, *job.MinLogStd, job.SeedValue()), nil
	}
	var p policy.GaussianMLP
	if err := checkpoint.Load(*job.InitPolicy, &p); err != nil {
		return nil, err
	}
	if p.ObsDim != env.ObservationDim() || p.ActDim != env.ActionDim() {
		return nil, fmt.Errorf("policy %s does not match %s", *job.InitPolicy, job.EnvName)
	}
	if job.Has("init_log_std") && *job.InitLogStd != 0 {
		p.SetLogStd(*job.InitLogStd)
	}
	if job.Has("min_log_std") && *job.MinLogStd != 0 {
		p.SetMinLogStd(*job.MinLogStd)
	}
	return &p, nil
}

func (e *Experiment) fitModels(models dynamics.Ensemble, trained bool, buffer *types.Transitions, log *logger.DataLog) {
	job := e.Job
	for i, m := range models {
		if trained {
			log.LogKV(fmt.Sprintf("dyn_loss_gen_%d", i), m.ComputeLoss(buffer.S, buffer.A, buffer.SP))
			continue
		}
		bar := progressbar.NewOptions(job.FitEpochs,
			progressbar.OptionSetDescription(fmt.Sprintf("fitting model %d", i)),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetWriter(e.Options.Out),
		)
		opts := dynamics.FitOptions{
			Epochs:    job.FitEpochs,
			BatchSize: job.FitMBSize,
			LR:        job.FitLR,
			OnEpoch: func(int, float64) {
				_ = bar.Add(1)
			},
		}
		losses := m.FitDynamics(buffer.S, buffer.A, buffer.SP, opts)
		_ = bar.Finish()
		log.LogKV(fmt.Sprintf("dyn_loss_%d", i), losses[len(losses)-1])
		log.LogKV(fmt.Sprintf("dyn_loss_gen_%d", i), m.ComputeLoss(buffer.S, buffer.A, buffer.SP))
		if *job.LearnReward {
			opts.OnEpoch = nil
			rewardLosses := m.FitReward(buffer.S, buffer.A, buffer.R, opts)
			log.LogKV(fmt.Sprintf("rew_loss_%d", i), rewardLosses[len(rewardLosses)-1])
		}
		slog.Debug("fitted model", "model", i, "loss", losses[len(losses)-1])
	}
}

// withObsMask runs f while the policies scale their inputs by the
// environment's observation mask, then restores their scaling
func (e *Experiment) withObsMask(env *envs.GymEnv, policies []*policy.GaussianMLP, f func() error) error {
	scale := inverse(env.ObsMask())
	old := make([][]float64, len(policies))
	for i, p := range policies {
		old[i] = p.InScale
		p.SetTransformations(scale, nil)
	}
	defer func() {
		for i, p := range policies {
			p.SetTransformations(old[i], nil)
		}
	}()
	return f()
}

func inverse(mask []float64) []float64 {
	out := make([]float64, len(mask))
	for i, v := range mask {
		out[i] = 1 / v
	}
	return out
}
