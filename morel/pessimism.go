package morel

import (
	"github.com/zeu5/morel/config"
	"gonum.org/v1/gonum/floats"
)

// TruncationParams derives the unknown region threshold and the truncation
// penalty from the per sample disagreement of the models over the dataset.
// A nil limit means no pessimism.
func TruncationParams(job *config.Job, delta []float64) (limit *float64, reward float64) {
	if !job.Has("pessimism_coef") {
		return nil, 0
	}
	reward = job.TruncateReward
	if !job.PessimismEnabled() || len(delta) == 0 {
		return nil, reward
	}
	lim := floats.Max(delta) / *job.PessimismCoef
	return &lim, reward
}
