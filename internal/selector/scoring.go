package selector

import (
	"math"

	"github.com/chronodb/metasrv/internal/model"
)

// LoadWeights scale each reported statistic into the load score
type LoadWeights struct {
	RegionCount      float64
	CPUUsage         float64
	MemoryUsage      float64
	WriteBytesPerSec float64
}

// DefaultWeights ranks peers by region count alone
func DefaultWeights() LoadWeights {
	return LoadWeights{RegionCount: 1.0}
}

// Scorer turns load statistics into a scalar; lower means more capacity
type Scorer struct {
	Weights LoadWeights
}

// NewScorer creates a scorer with the given weights
func NewScorer(weights LoadWeights) *Scorer {
	return &Scorer{Weights: weights}
}

// DefaultScorer uses DefaultWeights
var DefaultScorer = NewScorer(DefaultWeights())

// Score computes the weighted sum of the statistics. Non-finite inputs rank
// the peer last.
func (s *Scorer) Score(stats model.LoadStats) float64 {
	score := s.Weights.RegionCount*float64(stats.RegionCount) +
		s.Weights.CPUUsage*sanitizeFloat64(stats.CPUUsage, math.MaxFloat64) +
		s.Weights.MemoryUsage*sanitizeFloat64(stats.MemoryUsage, math.MaxFloat64) +
		s.Weights.WriteBytesPerSec*sanitizeFloat64(stats.WriteBytesPerSec, math.MaxFloat64)

	return sanitizeFloat64(score, math.MaxFloat64)
}

func sanitizeFloat64(value, defaultValue float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return defaultValue
	}
	return value
}
