// Package dataset reads, writes and collects offline trajectory datasets.
package dataset

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

var (
	ErrEmptyDataset = errors.New("dataset has no paths")
	ErrShape        = errors.New("dataset shape mismatch")
)

// Load reads a json array of paths (.json) or a gob encoded list of paths
func Load(path string) ([]*types.Path, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var paths []*types.Path
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.NewDecoder(f).Decode(&paths)
	} else {
		err = gob.NewDecoder(f).Decode(&paths)
	}
	if err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	if len(paths) == 0 {
		return nil, ErrEmptyDataset
	}
	obsDim, actDim := -1, -1
	for i, p := range paths {
		if p == nil {
			return nil, fmt.Errorf("%w: %s: path %d is null", ErrShape, path, i)
		}
		if len(p.Observations) != len(p.Actions) || len(p.Observations) != len(p.Rewards) {
			return nil, fmt.Errorf("%w: %s: path %d has misaligned observations, actions and rewards", ErrShape, path, i)
		}
		if err := checkWidth(p.Observations, &obsDim); err != nil {
			return nil, fmt.Errorf("%s: path %d observations: %w", path, i, err)
		}
		if err := checkWidth(p.Actions, &actDim); err != nil {
			return nil, fmt.Errorf("%s: path %d actions: %w", path, i, err)
		}
	}
	return paths, nil
}

// checkWidth makes sure every row has the width of the first row seen
func checkWidth(rows [][]float64, width *int) error {
	for t, r := range rows {
		if *width < 0 {
			*width = len(r)
		}
		if len(r) != *width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, t, len(r), *width)
		}
	}
	return nil
}

// Save writes the paths in the format given by the file extension
func Save(path string, paths []*types.Path) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.NewEncoder(f).Encode(paths)
	} else {
		err = gob.NewEncoder(f).Encode(paths)
	}
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

// Collect runs episodes in the environment. Actions come from the policy
// when given (mean action plus gaussian noise of the given scale), otherwise
// uniformly from [-1, 1].
func Collect(env types.Environment, p *policy.GaussianMLP, episodes int, noise float64, rng *rand.Rand) []*types.Path {
	paths := make([]*types.Path, 0, episodes)
	horizon := env.Horizon()
	for e := 0; e < episodes; e++ {
		path := types.NewPath()
		obs := env.Reset()
		for t := 0; t < horizon; t++ {
			action := make([]float64, env.ActionDim())
			if p != nil {
				_, mean := p.Act(obs)
				for i := range action {
					action[i] = mean[i] + noise*rng.NormFloat64()
				}
			} else {
				for i := range action {
					action[i] = 2*rng.Float64() - 1
				}
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
