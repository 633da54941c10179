package monitor

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, s *Server, url string, out interface{}) {
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestStatus(t *testing.T) {
	s := NewServer(context.Background(), "localhost:0", "run-1", "PointMass", 10)

	var status Status
	get(t, s, "/status", &status)
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, 0, status.Iteration)
	assert.False(t, status.Done)

	s.Update(3, 12.5, map[string]float64{"train_score": 1, "eval_score": math.NaN()}, nil)
	s.Finish()
	get(t, s, "/status", &status)
	assert.Equal(t, 3, status.Iteration)
	assert.Equal(t, 12.5, status.BestScore)
	assert.Equal(t, 1.0, status.Row["train_score"])
	assert.Nil(t, status.Row["eval_score"])
	assert.True(t, status.Done)
}

func TestLog(t *testing.T) {
	s := NewServer(context.Background(), "localhost:0", "run-1", "PointMass", 10)
	s.Update(1, 0, nil, map[string][]float64{"train_score": {1, 2}})

	var series map[string][]float64
	get(t, s, "/log", &series)
	assert.Equal(t, []float64{1, 2}, series["train_score"])
}

func TestStartReportsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	busy := NewServer(ctx, ln.Addr().String(), "run", "PointMass", 1)
	assert.Error(t, busy.Start())

	free := NewServer(ctx, "127.0.0.1:0", "run", "PointMass", 1)
	assert.NoError(t, free.Start())
}
