package sim

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// UtilityFunc scores candidate response r for data v. Higher is better.
type UtilityFunc func(v Value, r float64) float64

// ExponentialMechanism draws responses from a candidate set with probability
// proportional to exp(epsilon * u(v, r) / (2 * deltaU)), where deltaU bounds
// the sensitivity of the utility function.
type ExponentialMechanism struct {
	utility       UtilityFunc
	responseSpace []float64
	deltaU        float64
	epsilon       float64
	size          int
}

// NewExponentialMechanism copies responseSpace; later changes by the caller
// do not affect the mechanism. size is the number of draws (with replacement)
// per Randomize call.
func NewExponentialMechanism(utility UtilityFunc, responseSpace []float64, deltaU, epsilon float64, size int) (*ExponentialMechanism, error) {
	if utility == nil {
		return nil, configErrorf("exponential mechanism needs a utility function")
	}
	if len(responseSpace) == 0 {
		return nil, configErrorf("exponential mechanism needs a non-empty response space")
	}
	if math.IsNaN(deltaU) || math.IsInf(deltaU, 0) || deltaU <= 0 {
		return nil, configErrorf("utility sensitivity must be positive and finite, got %f", deltaU)
	}
	if err := ValidateEpsilonDelta(EpsilonDelta{Epsilon: epsilon}); err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, configErrorf("exponential mechanism size must be at least 1, got %d", size)
	}
	return &ExponentialMechanism{
		utility:       utility,
		responseSpace: slices.Clone(responseSpace),
		deltaU:        deltaU,
		epsilon:       epsilon,
		size:          size,
	}, nil
}

// Probabilities returns the normalized sampling distribution over the
// response space for v.
func (m *ExponentialMechanism) Probabilities(v Value) []float64 {
	logits := make([]float64, len(m.responseSpace))
	for i, r := range m.responseSpace {
		logits[i] = m.epsilon * m.utility(v, r) / (2 * m.deltaU)
	}
	// Shift by the max so the largest weight is exp(0) and nothing overflows.
	shift := floats.Max(logits)
	for i := range logits {
		logits[i] = math.Exp(logits[i] - shift)
	}
	floats.Scale(1/floats.Sum(logits), logits)
	return logits
}

func (m *ExponentialMechanism) Randomize(rng *rand.Rand, v Value) (Value, error) {
	categorical := distuv.NewCategorical(m.Probabilities(v), rng)
	out := make([]float64, m.size)
	for i := range out {
		out[i] = m.responseSpace[int(categorical.Rand())]
	}
	return vectorOwned(out), nil
}

func (m *ExponentialMechanism) EpsilonDelta() EpsilonDelta {
	return EpsilonDelta{Epsilon: m.epsilon}
}
