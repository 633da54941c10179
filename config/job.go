// Package config loads, validates and persists experiment job files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeu5/morel/util"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingKey   = errors.New("missing required key")
	ErrInvalidValue = errors.New("invalid value")
)

// NPGHyperParams are passed to the NPG agent
type NPGHyperParams struct {
	Gamma     float64 `yaml:"gamma" json:"gamma,omitempty"`
	GAELambda float64 `yaml:"gae_lambda" json:"gae_lambda,omitempty"`
	CGIters   int     `yaml:"cg_iters" json:"cg_iters,omitempty"`
	Damping   float64 `yaml:"damping" json:"damping,omitempty"`
}

// Job is the set of hyperparameters of one experiment
type Job struct {
	EnvName    string  `yaml:"env_name" json:"env_name"`
	Seed       *int64  `yaml:"seed" json:"seed,omitempty"`
	DataFile   string  `yaml:"data_file" json:"data_file"`
	ModelFile  *string `yaml:"model_file" json:"model_file"`
	InitPolicy *string `yaml:"init_policy" json:"init_policy,omitempty"`

	// dynamics ensemble
	NumModels   int      `yaml:"num_models" json:"num_models"`
	HiddenSize  []int    `yaml:"hidden_size" json:"hidden_size"`
	Activation  string   `yaml:"activation" json:"activation"`
	FitLR       float64  `yaml:"fit_lr" json:"fit_lr"`
	FitMBSize   int      `yaml:"fit_mb_size" json:"fit_mb_size"`
	FitEpochs   int      `yaml:"fit_epochs" json:"fit_epochs"`
	LearnReward *bool    `yaml:"learn_reward" json:"learn_reward"`
	PolicySize  []int    `yaml:"policy_size" json:"policy_size"`
	InitLogStd  *float64 `yaml:"init_log_std" json:"init_log_std"`
	MinLogStd   *float64 `yaml:"min_log_std" json:"min_log_std"`

	// policy optimization
	StepSize       float64        `yaml:"step_size" json:"step_size"`
	NumIter        int            `yaml:"num_iter" json:"num_iter"`
	UpdatePaths    int            `yaml:"update_paths" json:"update_paths"`
	Horizon        int            `yaml:"horizon" json:"horizon"`
	StartState     string         `yaml:"start_state" json:"start_state"`
	BufferFrac     *float64       `yaml:"buffer_frac" json:"buffer_frac,omitempty"`
	PessimismCoef  *float64       `yaml:"pessimism_coef" json:"pessimism_coef,omitempty"`
	TruncateReward float64        `yaml:"truncate_reward" json:"truncate_reward"`
	BCInit         bool           `yaml:"bc_init" json:"bc_init"`
	EvalRollouts   int            `yaml:"eval_rollouts" json:"eval_rollouts"`
	SaveFreq       int            `yaml:"save_freq" json:"save_freq"`
	Device         string         `yaml:"device" json:"device"`
	HVPFrac        float64        `yaml:"hvp_frac" json:"hvp_frac"`
	NumCPU         int            `yaml:"num_cpu" json:"num_cpu"`
	ActRepeat      int            `yaml:"act_repeat" json:"act_repeat"`
	NPGHP          NPGHyperParams `yaml:"npg_hp" json:"npg_hp"`

	// deployment scaling of the observations, policies are saved with
	// input scale 1/obs_mask
	ObsMask []float64 `yaml:"obs_mask" json:"obs_mask,omitempty"`

	// optional stream of the log rows
	RedisAddr   string `yaml:"redis_addr" json:"redis_addr,omitempty"`
	RedisStream string `yaml:"redis_stream" json:"redis_stream,omitempty"`

	// derived, written back by the driver
	TruncateLim *float64 `yaml:"truncate_lim" json:"truncate_lim,omitempty"`
	BaseSeed    *int64   `yaml:"base_seed" json:"base_seed,omitempty"`

	keys map[string]bool
}

// Load parses the job file and overlays every include file in order.
// Unknown keys are rejected.
func Load(path string, includes ...string) (*Job, error) {
	job := &Job{keys: make(map[string]bool)}
	for _, p := range append([]string{path}, includes...) {
		if err := job.decodeFile(p); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func (j *Job) decodeFile(path string) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return j.decode(path, bs)
}

func (j *Job) decode(name string, bs []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	if err := dec.Decode(j); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("config %s is empty", name)
		}
		return fmt.Errorf("parse config %s: %w", name, err)
	}

	// null and absent keys decode the same, remember which were written
	var raw map[string]interface{}
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", name, err)
	}
	if j.keys == nil {
		j.keys = make(map[string]bool)
	}
	for k := range raw {
		j.keys[k] = true
	}
	return nil
}

// Has reports whether the key was present in any of the loaded files
func (j *Job) Has(key string) bool {
	return j.keys[key]
}

func (j *Job) SetSeed(seed int64) {
	j.Seed = &seed
	if j.keys == nil {
		j.keys = make(map[string]bool)
	}
	j.keys["seed"] = true
}

func (j *Job) SeedValue() int64 {
	if j.Seed == nil {
		return 0
	}
	return *j.Seed
}

// ApplyDefaults fills every optional key that was not given
func (j *Job) ApplyDefaults() {
	if j.SaveFreq == 0 && !j.Has("save_freq") {
		j.SaveFreq = 10
	}
	if j.Device == "" {
		j.Device = "cpu"
	}
	if j.HVPFrac == 0 && !j.Has("hvp_frac") {
		j.HVPFrac = 1.0
	}
	if j.StartState == "" {
		j.StartState = "init"
	}
	if j.LearnReward == nil {
		learn := true
		j.LearnReward = &learn
	}
	if j.NumCPU == 0 {
		j.NumCPU = 1
	}
	if j.ActRepeat == 0 {
		j.ActRepeat = 1
	}
	if len(j.HiddenSize) == 0 {
		j.HiddenSize = []int{64, 64}
	}
	if j.Activation == "" {
		j.Activation = "relu"
	}
	if j.FitLR == 0 {
		j.FitLR = 1e-3
	}
	if j.FitMBSize == 0 {
		j.FitMBSize = 256
	}
	if len(j.PolicySize) == 0 {
		j.PolicySize = []int{32, 32}
	}
	if j.InitLogStd == nil {
		v := -0.5
		j.InitLogStd = &v
	}
	if j.MinLogStd == nil {
		v := -2.0
		j.MinLogStd = &v
	}
	if j.NPGHP.Gamma == 0 {
		j.NPGHP.Gamma = 0.995
	}
	if j.NPGHP.GAELambda == 0 {
		j.NPGHP.GAELambda = 0.97
	}
	if j.NPGHP.CGIters == 0 {
		j.NPGHP.CGIters = 10
	}
	if j.NPGHP.Damping == 0 {
		j.NPGHP.Damping = 1e-4
	}
	if j.RedisAddr != "" && j.RedisStream == "" {
		j.RedisStream = "morel:" + j.EnvName
	}
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissingKey, key)
}

func invalid(key string, v interface{}) error {
	return fmt.Errorf("%w: %s = %v", ErrInvalidValue, key, v)
}

// Validate checks the required keys and value ranges
func (j *Job) Validate() error {
	if j.EnvName == "" {
		return missing("env_name")
	}
	if j.Seed == nil {
		return missing("seed")
	}
	if j.DataFile == "" {
		return missing("data_file")
	}
	if j.ModelFile == nil {
		if j.NumModels <= 0 {
			return missing("num_models")
		}
		if j.FitEpochs <= 0 {
			return missing("fit_epochs")
		}
	}
	if j.NumIter <= 0 {
		return missing("num_iter")
	}
	if j.UpdatePaths <= 0 {
		return missing("update_paths")
	}
	if j.Horizon <= 0 {
		return missing("horizon")
	}
	if j.StepSize <= 0 {
		return missing("step_size")
	}
	if j.StartState != "init" && j.StartState != "buffer" {
		return invalid("start_state", j.StartState)
	}
	if j.Device != "cpu" {
		return invalid("device", j.Device)
	}
	if j.HVPFrac <= 0 || j.HVPFrac > 1 {
		return invalid("hvp_frac", j.HVPFrac)
	}
	if j.BufferFrac != nil && (*j.BufferFrac < 0 || *j.BufferFrac > 1) {
		return invalid("buffer_frac", *j.BufferFrac)
	}
	if j.SaveFreq <= 0 {
		return invalid("save_freq", j.SaveFreq)
	}
	if j.PessimismCoef != nil && *j.PessimismCoef < 0 {
		return invalid("pessimism_coef", *j.PessimismCoef)
	}
	if j.Activation != "relu" && j.Activation != "tanh" {
		return invalid("activation", j.Activation)
	}
	if j.NumCPU < 1 {
		return invalid("num_cpu", j.NumCPU)
	}
	if j.ActRepeat < 1 {
		return invalid("act_repeat", j.ActRepeat)
	}
	for _, m := range j.ObsMask {
		if m <= 0 {
			return invalid("obs_mask", j.ObsMask)
		}
	}
	return nil
}

// PessimismEnabled reports whether a non zero pessimism coefficient was given
func (j *Job) PessimismEnabled() bool {
	return j.PessimismCoef != nil && *j.PessimismCoef != 0
}

// SetTruncation records the pessimism parameters derived from the models.
// A nil limit disables truncation.
func (j *Job) SetTruncation(limit *float64, reward float64) {
	j.TruncateLim = limit
	j.TruncateReward = reward
	if j.keys == nil {
		j.keys = make(map[string]bool)
	}
	j.keys["truncate_lim"] = true
	j.keys["truncate_reward"] = true
}

// MarshalJSON writes an explicit null for optional keys that are set but empty
func (j *Job) MarshalJSON() ([]byte, error) {
	type plain Job
	bs, err := json.Marshal((*plain)(j))
	if err != nil {
		return nil, err
	}
	nulls := make([]string, 0)
	if j.Has("pessimism_coef") && j.PessimismCoef == nil {
		nulls = append(nulls, "pessimism_coef")
	}
	if j.Has("truncate_lim") && j.TruncateLim == nil {
		nulls = append(nulls, "truncate_lim")
	}
	if len(nulls) == 0 {
		return bs, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, err
	}
	for _, k := range nulls {
		m[k] = nil
	}
	return json.Marshal(m)
}

// Persist writes the job as indented json (job_data.json)
func (j *Job) Persist(path string) error {
	if err := util.WriteJSON(path, j); err != nil {
		return fmt.Errorf("write job: %w", err)
	}
	return nil
}
