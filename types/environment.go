package types

// Environment with continuous observations and actions
type Environment interface {
	// Reset called at the start of each episode
	Reset() []float64
	Step(action []float64) (obs []float64, reward float64, done bool)
	ObservationDim() int
	ActionDim() int
	// Horizon is the episode length
	Horizon() int
	Seed(int64)
}

// PathRewarder recomputes the rewards of paths from observations and actions
type PathRewarder interface {
	PathRewards(paths []*Path)
}

// PathTruncator cuts paths that entered terminal states
type PathTruncator interface {
	TruncatePaths(paths []*Path) []*Path
}

// SuccessEvaluator scores a batch of paths with a task metric
type SuccessEvaluator interface {
	EvaluateSuccess(paths []*Path) float64
}

// ObsMasker exposes per-dimension observation scaling
type ObsMasker interface {
	ObsMask() []float64
}
