package sim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// randomizeBinary passes every bit of v through the binary channel
// P(out=0|in=0)=f0, P(out=1|in=1)=f1 with independent draws per element.
// f0=f1=1 is the identity channel.
func randomizeBinary(rng *rand.Rand, v Value, f0, f1 float64) (Value, error) {
	if !v.isBinary() {
		return Value{}, fmt.Errorf("%w: randomized response needs binary data, got %s", ErrDomain, v)
	}
	keepOne := distuv.Bernoulli{P: f1, Src: rng}
	flipZero := distuv.Bernoulli{P: 1 - f0, Src: rng}
	out := make([]float64, v.Len())
	for i, x := range v.data {
		if x == 0 {
			out[i] = flipZero.Rand()
		} else {
			out[i] = keepOne.Rand()
		}
	}
	return v.withData(out), nil
}

// binaryChannelEpsilon is the smallest epsilon for which the channel
// (f0, f1) is epsilon-differentially private. For f0+f1 >= 1 this is
// ln(max(f0/(1-f1), f1/(1-f0))). Below that the channel mostly inverts its
// input and the reciprocal ratios bound the leakage, so both directions are
// taken as absolute log ratios. Deterministic channels cost +Inf.
func binaryChannelEpsilon(f0, f1 float64) float64 {
	return math.Max(absLogRatio(f0, 1-f1), absLogRatio(f1, 1-f0))
}

// absLogRatio is |ln(a/b)| for probabilities, with 0/0 (an output that
// never occurs) counted as no leakage.
func absLogRatio(a, b float64) float64 {
	if a == b {
		return 0
	}
	return math.Abs(math.Log(a) - math.Log(b))
}

// RandomizedResponseCoins is the two coin flip algorithm from Dwork and Roth,
// "The Algorithmic Foundations of Differential Privacy":
//
//  1. Flip a coin with P(heads) = ProbHeadFirst.
//  2. If tails, answer truthfully.
//  3. If heads, flip a second coin with P(heads) = ProbHeadSecond and answer
//     1 on heads, 0 on tails.
type RandomizedResponseCoins struct {
	probHeadFirst  float64
	probHeadSecond float64
}

// NewRandomizedResponseCoins validates both probabilities lie in [0,1].
func NewRandomizedResponseCoins(probHeadFirst, probHeadSecond float64) (*RandomizedResponseCoins, error) {
	if err := validateProbability("prob_head_first", probHeadFirst); err != nil {
		return nil, err
	}
	if err := validateProbability("prob_head_second", probHeadSecond); err != nil {
		return nil, err
	}
	return &RandomizedResponseCoins{probHeadFirst: probHeadFirst, probHeadSecond: probHeadSecond}, nil
}

// DefaultRandomizedResponseCoins uses two fair coins, which costs ln(3).
func DefaultRandomizedResponseCoins() *RandomizedResponseCoins {
	return &RandomizedResponseCoins{probHeadFirst: 0.5, probHeadSecond: 0.5}
}

// channel returns the equivalent binary channel (f0, f1).
func (m *RandomizedResponseCoins) channel() (f0, f1 float64) {
	p1, p2 := m.probHeadFirst, m.probHeadSecond
	return 1 - p1*p2, 1 - p1 + p1*p2
}

func (m *RandomizedResponseCoins) Randomize(rng *rand.Rand, v Value) (Value, error) {
	f0, f1 := m.channel()
	return randomizeBinary(rng, v, f0, f1)
}

// EpsilonDelta returns the cost of the equivalent binary channel. It is ln(3)
// for two fair coins and +Inf when either coin is deterministic.
func (m *RandomizedResponseCoins) EpsilonDelta() EpsilonDelta {
	f0, f1 := m.channel()
	return EpsilonDelta{Epsilon: binaryChannelEpsilon(f0, f1)}
}

// RandomizedResponseBinary is the general binary randomized response:
// P(out=0|in=0) = f0 and P(out=1|in=1) = f1.
// It is maximally random for f0 = f1 = 1/2.
type RandomizedResponseBinary struct {
	f0, f1  float64
	epsilon float64
}

// NewRandomizedResponseBinary rejects f0 or f1 outside (0,1), and any epsilon
// below ln(max(f0/(1-f1), f1/(1-f0))), the least epsilon the channel satisfies.
func NewRandomizedResponseBinary(f0, f1, epsilon float64) (*RandomizedResponseBinary, error) {
	if !(f0 > 0 && f0 < 1) {
		return nil, configErrorf("f0 must be in the open interval (0,1), got %f", f0)
	}
	if !(f1 > 0 && f1 < 1) {
		return nil, configErrorf("f1 must be in the open interval (0,1), got %f", f1)
	}
	if err := ValidateEpsilonDelta(EpsilonDelta{Epsilon: epsilon}); err != nil {
		return nil, err
	}
	if least := binaryChannelEpsilon(f0, f1); epsilon < least {
		return nil, configErrorf("f0=%g, f1=%g need epsilon >= %g, got %g", f0, f1, least, epsilon)
	}
	return &RandomizedResponseBinary{f0: f0, f1: f1, epsilon: epsilon}, nil
}

func (m *RandomizedResponseBinary) Randomize(rng *rand.Rand, v Value) (Value, error) {
	return randomizeBinary(rng, v, m.f0, m.f1)
}

func (m *RandomizedResponseBinary) EpsilonDelta() EpsilonDelta {
	return EpsilonDelta{Epsilon: m.epsilon}
}

func validateProbability(name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return configErrorf("%s must be in [0,1], got %f", name, p)
	}
	return nil
}
