// Package checkpoint stores models, policies and agents as gob files.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Save encodes v into path, creating the parent directory
func Save(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	// replaced atomically
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Load decodes the file at path into v
func Load(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Names of the files of an experiment
const (
	ModelsFile = "models.pickle"
	BestPolicy = "best_policy.pickle"
)

// AgentFile is the agent checkpoint of an iteration ("final" at the end)
func AgentFile(tag string) string {
	return "agent_" + tag + ".pickle"
}

// PolicyFile is the policy checkpoint of an iteration ("final" at the end)
func PolicyFile(tag string) string {
	return "policy_" + tag + ".pickle"
}
