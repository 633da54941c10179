package dataset

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/morel/envs"
	"github.com/zeu5/morel/policy"
	"github.com/zeu5/morel/types"
	"golang.org/x/exp/rand"
)

func collectPointMass(t *testing.T, episodes int) []*types.Path {
	env, err := envs.Make("PointMass", 1)
	require.NoError(t, err)
	env.Seed(7)
	return Collect(env, nil, episodes, 0, rand.New(rand.NewSource(7)))
}

func TestCollect(t *testing.T) {
	paths := collectPointMass(t, 3)
	require.Len(t, paths, 3)
	for _, p := range paths {
		assert.Equal(t, 50, p.Len())
		for _, a := range p.Actions {
			assert.LessOrEqual(t, a[0], 1.0)
			assert.GreaterOrEqual(t, a[0], -1.0)
		}
	}
}

func TestCollectWithPolicy(t *testing.T) {
	env, err := envs.Make("Pendulum", 2)
	require.NoError(t, err)
	p := policy.NewGaussianMLP(3, 1, []int{4}, 0, -2, 1)
	paths := Collect(env, p, 2, 0.1, rand.New(rand.NewSource(1)))
	require.Len(t, paths, 2)
	assert.Equal(t, env.Horizon(), paths[0].Len())
}

func TestSaveLoad(t *testing.T) {
	paths := collectPointMass(t, 2)
	dir := t.TempDir()
	for _, name := range []string{"data.json", "data.pickle", "data.gob"} {
		file := path.Join(dir, name)
		require.NoError(t, Save(file, paths))
		loaded, err := Load(file)
		require.NoError(t, err, name)
		assert.Equal(t, paths, loaded, name)
	}
}

func TestLoadRejectsBadData(t *testing.T) {
	dir := t.TempDir()
	empty := path.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0644))
	_, err := Load(empty)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	bad := path.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"observations": [[0]], "actions": [], "rewards": [0]}]`), 0644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrShape)

	ragged := path.Join(dir, "ragged.json")
	require.NoError(t, os.WriteFile(ragged, []byte(`[{"observations": [[0, 0], [1]], "actions": [[0], [0]], "rewards": [0, 0]}]`), 0644))
	_, err = Load(ragged)
	assert.ErrorIs(t, err, ErrShape)

	mixed := path.Join(dir, "mixed.json")
	require.NoError(t, os.WriteFile(mixed, []byte(`[
		{"observations": [[0, 0]], "actions": [[0, 0]], "rewards": [0]},
		{"observations": [[0, 0]], "actions": [[0]], "rewards": [0]}]`), 0644))
	_, err = Load(mixed)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Load(path.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
