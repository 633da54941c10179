package checkpoint

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/morel/dynamics"
	"github.com/zeu5/morel/policy"
	"gonum.org/v1/gonum/mat"
)

func TestPolicyRoundTrip(t *testing.T) {
	file := path.Join(t.TempDir(), "iterations", PolicyFile("10"))
	p := policy.NewGaussianMLP(3, 2, []int{4}, -0.5, -2, 1)
	p.SetTransformations([]float64{2, 2, 2}, nil)
	require.NoError(t, Save(file, p))

	_, err := os.Stat(file + ".tmp")
	assert.True(t, os.IsNotExist(err))

	var restored policy.GaussianMLP
	require.NoError(t, Load(file, &restored))
	obs := mat.NewDense(2, 3, []float64{1, 2, 3, -1, 0, 1})
	assert.Equal(t, p.MeanActions(obs).RawMatrix().Data, restored.MeanActions(obs).RawMatrix().Data)
	assert.Equal(t, p.InScale, restored.InScale)

	// the sampling generator is recreated on demand
	sample, _ := restored.Act([]float64{0, 0, 0})
	assert.Len(t, sample, 2)
}

func TestEnsembleRoundTrip(t *testing.T) {
	file := path.Join(t.TempDir(), ModelsFile)
	e := dynamics.NewEnsemble(2, 2, 1, dynamics.ModelOptions{HiddenSize: []int{4}}, 5)
	require.NoError(t, Save(file, e))

	var restored dynamics.Ensemble
	require.NoError(t, Load(file, &restored))
	require.Len(t, restored, 2)
	s := mat.NewDense(1, 2, []float64{0.1, 0.2})
	a := mat.NewDense(1, 1, []float64{0.3})
	assert.Equal(t, e.Disagreement(s, a), restored.Disagreement(s, a))
}

func TestLoadMissing(t *testing.T) {
	var p policy.GaussianMLP
	err := Load(path.Join(t.TempDir(), "nope.pickle"), &p)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
