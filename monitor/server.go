// Package monitor serves the progress of a running experiment over HTTP.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status is the latest state of the run
type Status struct {
	RunID     string                 `json:"run_id"`
	Env       string                 `json:"env"`
	Iteration int                    `json:"iteration"`
	NumIter   int                    `json:"num_iter"`
	BestScore interface{}            `json:"best_score"`
	Done      bool                   `json:"done"`
	Row       map[string]interface{} `json:"row"`
}

type Server struct {
	Addr   string
	ctx    context.Context
	server *http.Server

	lock   *sync.Mutex
	status Status
	series map[string][]interface{}
}

func NewServer(ctx context.Context, addr, runID, env string, numIter int) *Server {
	s := &Server{
		Addr: addr,
		ctx:  ctx,
		lock: new(sync.Mutex),
		status: Status{
			RunID:   runID,
			Env:     env,
			NumIter: numIter,
			Row:     make(map[string]interface{}),
		},
		series: make(map[string][]interface{}),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/status", s.handleStatus)
	r.GET("/log", s.handleLog)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler is the router of the server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Update records a completed iteration. series is the full log so far.
func (s *Server) Update(iteration int, bestScore float64, row map[string]float64, series map[string][]float64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.status.Iteration = iteration
	s.status.BestScore = finite(bestScore)
	s.status.Row = make(map[string]interface{}, len(row))
	for k, v := range row {
		s.status.Row[k] = finite(v)
	}
	s.series = make(map[string][]interface{}, len(series))
	for k, vs := range series {
		out := make([]interface{}, len(vs))
		for i, v := range vs {
			out[i] = finite(v)
		}
		s.series[k] = out
	}
}

// Finish marks the run as completed
func (s *Server) Finish() {
	s.lock.Lock()
	s.status.Done = true
	s.lock.Unlock()
}

// json has no NaN or Inf
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func (s *Server) handleStatus(c *gin.Context) {
	s.lock.Lock()
	status := s.status
	s.lock.Unlock()
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleLog(c *gin.Context) {
	s.lock.Lock()
	series := s.series
	s.lock.Unlock()
	c.JSON(http.StatusOK, series)
}

// Start binds the address and serves until the context is cancelled
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("monitor listen on %s: %w", s.Addr, err)
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("monitor server stopped", "addr", s.Addr, "error", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}()
	return nil
}
