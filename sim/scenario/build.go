package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/fedsim/fedsim/sim"
)

// NewQuery creates a query by name.
// An empty string defaults to Identity.
// Panics on unrecognized names.
func NewQuery(name string) sim.Query {
	if !ValidQueries[name] {
		panic(fmt.Sprintf("unknown query %q", name))
	}
	switch name {
	case "", "identity":
		return sim.Identity{}
	case "mean":
		return sim.Mean{}
	default:
		panic(fmt.Sprintf("unhandled query %q", name))
	}
}

// NewNorm creates a sensitivity norm by name.
// An empty string defaults to L1Norm.
// Panics on unrecognized names.
func NewNorm(name string) sim.SensitivityNorm {
	if !ValidNorms[name] {
		panic(fmt.Sprintf("unknown norm %q", name))
	}
	switch name {
	case "", "l1":
		return sim.L1Norm{}
	case "l2":
		return sim.L2Norm{}
	default:
		panic(fmt.Sprintf("unhandled norm %q", name))
	}
}

// NewOracle builds the population oracle described by spec.
// An empty type is a normal distribution.
func NewOracle(spec OracleSpec, rng *rand.Rand) (sim.Oracle, error) {
	switch spec.Type {
	case "", "normal":
		return sim.NewNormalDistribution(spec.Mean, spec.Std, rng)
	case "mixture":
		return sim.NewGaussianMixture(spec.Components, rng)
	default:
		return nil, fmt.Errorf("unknown oracle type %q", spec.Type)
	}
}

// NewMechanism builds the mechanism described by spec. sensitivity replaces
// spec.Sensitivity when the latter is unset; dataSize is the number of
// records each node holds, used for sub-sampling.
// Returns nil for the "none" type.
func NewMechanism(spec MechanismSpec, sensitivity float64, dataSize int) (sim.Mechanism, error) {
	if spec.Sensitivity != nil {
		sensitivity = *spec.Sensitivity
	}
	query := NewQuery(spec.Query)

	var mech sim.PrivateMechanism
	var err error
	switch spec.Type {
	case "", "none":
		return nil, nil
	case "laplace":
		mech, err = sim.NewLaplaceMechanism(sensitivity, deref(spec.Epsilon), query)
	case "gaussian":
		mech, err = sim.NewGaussianMechanism(sensitivity, sim.EpsilonDelta{Epsilon: deref(spec.Epsilon), Delta: deref(spec.Delta)}, query)
	case "randomized-response-coins":
		if spec.ProbHeadFirst == nil && spec.ProbHeadSecond == nil {
			mech = sim.DefaultRandomizedResponseCoins()
		} else {
			mech, err = sim.NewRandomizedResponseCoins(derefOr(spec.ProbHeadFirst, 0.5), derefOr(spec.ProbHeadSecond, 0.5))
		}
	case "randomized-response-binary":
		mech, err = sim.NewRandomizedResponseBinary(deref(spec.F0), deref(spec.F1), deref(spec.Epsilon))
	case "exponential":
		mech, err = sim.NewExponentialMechanism(closeTo(query), spec.ResponseSpace, sensitivity, deref(spec.Epsilon), max(spec.Size, 1))
	default:
		return nil, fmt.Errorf("unknown mechanism type %q", spec.Type)
	}
	if err != nil {
		return nil, err
	}
	return wrapSampling(mech, spec.Sampling, dataSize)
}

// wrapSampling applies sub-sampling amplification when configured.
func wrapSampling(mech sim.PrivateMechanism, spec *SamplingSpec, dataSize int) (sim.Mechanism, error) {
	if spec == nil {
		return mech, nil
	}
	switch spec.Method {
	case "", "none":
		return sim.NewDefaultSampler(mech), nil
	case "without-replacement":
		return sim.NewSampleWithoutReplacement(mech, spec.SampleSize, dataSize)
	case "with-replacement":
		return sim.NewSampleWithReplacement(mech, spec.SampleSize, dataSize)
	default:
		return nil, fmt.Errorf("unknown sampling method %q", spec.Method)
	}
}

// closeTo scores a candidate by its distance to the mean of the query answer.
func closeTo(query sim.Query) sim.UtilityFunc {
	return func(v sim.Value, r float64) float64 {
		answer := query.Get(v).Float64s()
		if len(answer) == 0 {
			return math.Inf(-1)
		}
		return -math.Abs(stat.Mean(answer, nil) - r)
	}
}

func deref(p *float64) float64 { return derefOr(p, 0) }

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
