package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// LaplaceMechanism answers a numeric query with Laplace noise of scale
// b = sensitivity/epsilon added to every coordinate of the answer.
// It is (epsilon, 0)-differentially private when sensitivity bounds the
// query's L1 sensitivity.
type LaplaceMechanism struct {
	sensitivity float64
	epsilon     float64
	query       Query
}

// NewLaplaceMechanism builds a Laplace mechanism. A nil query is Identity.
func NewLaplaceMechanism(sensitivity, epsilon float64, query Query) (*LaplaceMechanism, error) {
	if err := validateSensitivity(sensitivity); err != nil {
		return nil, err
	}
	if err := ValidateEpsilonDelta(EpsilonDelta{Epsilon: epsilon}); err != nil {
		return nil, err
	}
	if epsilon == 0 {
		return nil, configErrorf("laplace mechanism needs a positive epsilon")
	}
	if query == nil {
		query = Identity{}
	}
	return &LaplaceMechanism{sensitivity: sensitivity, epsilon: epsilon, query: query}, nil
}

func (m *LaplaceMechanism) Randomize(rng *rand.Rand, v Value) (Value, error) {
	noise := distuv.Laplace{Mu: 0, Scale: m.sensitivity / m.epsilon, Src: rng}
	return addNoise(m.query.Get(v), noise.Rand), nil
}

func (m *LaplaceMechanism) EpsilonDelta() EpsilonDelta {
	return EpsilonDelta{Epsilon: m.epsilon}
}

// GaussianMechanism answers a numeric query with Gaussian noise of standard
// deviation sqrt(2 ln(1.25/delta)) * sensitivity/epsilon. The bound is only
// valid for 0 < epsilon <= 1.
type GaussianMechanism struct {
	sensitivity float64
	cost        EpsilonDelta
	query       Query
}

// NewGaussianMechanism builds a Gaussian mechanism. A nil query is Identity.
func NewGaussianMechanism(sensitivity float64, cost EpsilonDelta, query Query) (*GaussianMechanism, error) {
	if err := validateSensitivity(sensitivity); err != nil {
		return nil, err
	}
	if err := ValidateEpsilonDelta(cost); err != nil {
		return nil, err
	}
	if cost.Epsilon <= 0 || cost.Epsilon > 1 {
		return nil, configErrorf("gaussian mechanism needs epsilon in (0,1], got %f", cost.Epsilon)
	}
	if cost.Delta <= 0 || cost.Delta > 1 {
		return nil, configErrorf("gaussian mechanism needs delta in (0,1], got %f", cost.Delta)
	}
	if query == nil {
		query = Identity{}
	}
	return &GaussianMechanism{sensitivity: sensitivity, cost: cost, query: query}, nil
}

// StdDev returns the standard deviation of the added noise.
func (m *GaussianMechanism) StdDev() float64 {
	return math.Sqrt(2*math.Log(1.25/m.cost.Delta)) * m.sensitivity / m.cost.Epsilon
}

func (m *GaussianMechanism) Randomize(rng *rand.Rand, v Value) (Value, error) {
	noise := distuv.Normal{Mu: 0, Sigma: m.StdDev(), Src: rng}
	return addNoise(m.query.Get(v), noise.Rand), nil
}

func (m *GaussianMechanism) EpsilonDelta() EpsilonDelta {
	return m.cost
}

// addNoise returns answer with one independent draw added per coordinate.
func addNoise(answer Value, draw func() float64) Value {
	out := make([]float64, answer.Len())
	for i, x := range answer.data {
		out[i] = x + draw()
	}
	return answer.withData(out)
}

func validateSensitivity(s float64) error {
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return configErrorf("sensitivity must be a finite non-negative number, got %f", s)
	}
	return nil
}
