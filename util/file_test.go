package util

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, MakeDirs(path.Join(dir, "a", "b")))
	file := path.Join(dir, "a", "b", "out.txt")
	require.NoError(t, AppendToFile(file, "one"))
	require.NoError(t, AppendToFile(file, "two", "three"))
	bs, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(bs))
}

func TestWriteJSON(t *testing.T) {
	file := path.Join(t.TempDir(), "v.json")
	require.NoError(t, WriteJSON(file, map[string]int{"a": 1}))
	bs, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(bs))
}
