package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathOf(n int) *Path {
	p := NewPath()
	for i := 0; i < n; i++ {
		p.Append([]float64{float64(i)}, []float64{-float64(i)}, float64(i))
	}
	return p
}

func TestFlatten(t *testing.T) {
	paths := []*Path{pathOf(3), pathOf(1), pathOf(0), pathOf(2)}
	assert.Equal(t, 3, BufferSize(paths))
	assert.Equal(t, 6, NumSamples(paths))

	tr := Flatten(paths)
	require.Equal(t, 3, tr.Len())
	assert.Equal(t, []float64{0, 1, 0}, tr.R)
	assert.Equal(t, []float64{1}, tr.State(1))
	assert.Equal(t, 2.0, tr.SP.At(1, 0))
	assert.Equal(t, -1.0, tr.A.At(1, 0))
	assert.Len(t, InitStates(paths), 3)
}

func TestBufferSizeWithoutTransitions(t *testing.T) {
	assert.Equal(t, 0, BufferSize([]*Path{pathOf(1), pathOf(0)}))
	assert.Equal(t, 0, Flatten([]*Path{pathOf(1)}).Len())
}
