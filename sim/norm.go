package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SensitivityNorm measures the distance between two answers of the same query.
// The sensitivity sampler and every mechanism that takes a sensitivity must
// agree on the norm. Answers of different lengths are infinitely far apart.
type SensitivityNorm interface {
	Compute(a, b Value) float64
}

// L1Norm is the sum of absolute differences.
type L1Norm struct{}

func (L1Norm) Compute(a, b Value) float64 {
	if a.Len() != b.Len() {
		return math.Inf(1)
	}
	return floats.Distance(a.data, b.data, 1)
}

// L2Norm is the Euclidean norm of the difference.
type L2Norm struct{}

func (L2Norm) Compute(a, b Value) float64 {
	if a.Len() != b.Len() {
		return math.Inf(1)
	}
	return floats.Distance(a.data, b.data, 2)
}
