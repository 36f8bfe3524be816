package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sub-sampling amplification, Theorems 9 and 10 of Balle, Barthe and
// Gaboardi, "Privacy Amplification by Subsampling: Tight Analyses via
// Couplings and Divergences" (2018). Running an (epsilon, delta) mechanism on
// a random sample of sampleSize out of dataSize records costs less than
// running it on all of them.

// SampleWithoutReplacement applies a mechanism to sampleSize records drawn
// without replacement.
type SampleWithoutReplacement struct {
	mechanism  PrivateMechanism
	sampleSize int
	dataSize   int
}

// NewSampleWithoutReplacement wraps mechanism. sampleSize must not exceed
// dataSize, and Randomize refuses inputs with fewer than dataSize records.
func NewSampleWithoutReplacement(mechanism PrivateMechanism, sampleSize, dataSize int) (*SampleWithoutReplacement, error) {
	if err := checkSampleSize(mechanism, sampleSize, dataSize); err != nil {
		return nil, err
	}
	return &SampleWithoutReplacement{mechanism: mechanism, sampleSize: sampleSize, dataSize: dataSize}, nil
}

func (s *SampleWithoutReplacement) Randomize(rng *rand.Rand, v Value) (Value, error) {
	if err := checkInputSize(v, s.dataSize); err != nil {
		return Value{}, err
	}
	perm := rng.Perm(v.Len())
	sample := make([]float64, s.sampleSize)
	for i := range sample {
		sample[i] = v.data[perm[i]]
	}
	return s.mechanism.Randomize(rng, vectorOwned(sample))
}

// EpsilonDelta returns (ln(1 + q(e^eps - 1)), q*delta) with q = sampleSize/dataSize.
func (s *SampleWithoutReplacement) EpsilonDelta() EpsilonDelta {
	q := float64(s.sampleSize) / float64(s.dataSize)
	inner := s.mechanism.EpsilonDelta()
	return EpsilonDelta{Epsilon: amplifiedEpsilon(q, inner.Epsilon), Delta: q * inner.Delta}
}

// SampleWithReplacement applies a mechanism to sampleSize records drawn
// with replacement.
type SampleWithReplacement struct {
	mechanism  PrivateMechanism
	sampleSize int
	dataSize   int
}

// NewSampleWithReplacement wraps mechanism. sampleSize must not exceed dataSize.
func NewSampleWithReplacement(mechanism PrivateMechanism, sampleSize, dataSize int) (*SampleWithReplacement, error) {
	if err := checkSampleSize(mechanism, sampleSize, dataSize); err != nil {
		return nil, err
	}
	return &SampleWithReplacement{mechanism: mechanism, sampleSize: sampleSize, dataSize: dataSize}, nil
}

func (s *SampleWithReplacement) Randomize(rng *rand.Rand, v Value) (Value, error) {
	if err := checkInputSize(v, s.dataSize); err != nil {
		return Value{}, err
	}
	sample := make([]float64, s.sampleSize)
	for i := range sample {
		sample[i] = v.data[rng.IntN(v.Len())]
	}
	return s.mechanism.Randomize(rng, vectorOwned(sample))
}

// EpsilonDelta returns ln(1 + q(e^eps - 1)) with q = 1 - (1 - 1/n)^m, and
// delta scaled by P(Binomial(m, 1/n) >= 1), the chance a given record is
// drawn at least once.
func (s *SampleWithReplacement) EpsilonDelta() EpsilonDelta {
	n, m := float64(s.dataSize), float64(s.sampleSize)
	q := 1 - math.Pow(1-1/n, m)
	inner := s.mechanism.EpsilonDelta()
	hits := distuv.Binomial{N: m, P: 1 / n}
	return EpsilonDelta{
		Epsilon: amplifiedEpsilon(q, inner.Epsilon),
		Delta:   inner.Delta * (1 - hits.CDF(0)),
	}
}

// DefaultSampler applies the mechanism to all the data at full cost.
type DefaultSampler struct {
	mechanism PrivateMechanism
}

// NewDefaultSampler wraps mechanism without sub-sampling.
func NewDefaultSampler(mechanism PrivateMechanism) *DefaultSampler {
	return &DefaultSampler{mechanism: mechanism}
}

func (s *DefaultSampler) Randomize(rng *rand.Rand, v Value) (Value, error) {
	return s.mechanism.Randomize(rng, v)
}

func (s *DefaultSampler) EpsilonDelta() EpsilonDelta {
	return s.mechanism.EpsilonDelta()
}

func amplifiedEpsilon(q, epsilon float64) float64 {
	return math.Log(1 + q*(math.Exp(epsilon)-1))
}

// checkInputSize rejects inputs shorter than the data size the amplified
// cost was computed for. Longer inputs only make that cost conservative.
func checkInputSize(v Value, dataSize int) error {
	if v.Len() < dataSize {
		return configErrorf("sampling was sized for %d records but got %d", dataSize, v.Len())
	}
	return nil
}

func checkSampleSize(mechanism PrivateMechanism, sampleSize, dataSize int) error {
	if mechanism == nil {
		return configErrorf("sampling needs a private mechanism to wrap")
	}
	if sampleSize < 1 || dataSize < 1 {
		return configErrorf("sample size and data size must be positive, got %d and %d", sampleSize, dataSize)
	}
	if sampleSize > dataSize {
		return configErrorf("sample size %d must not exceed data size %d", sampleSize, dataSize)
	}
	return nil
}
