package sim

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// testRNG returns the mechanism stream of a fixed-seed run.
func testRNG(seed int64) *rand.Rand {
	return NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemMechanism)
}

func ones(n int) Value {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = 1
	}
	return Vector(xs)
}

// === Randomized response ===

func TestRandomizedResponseCoins_FairCoinsCostLn3(t *testing.T) {
	mech := DefaultRandomizedResponseCoins()
	assert.InDelta(t, math.Log(3), mech.EpsilonDelta().Epsilon, 1e-12)
	assert.Equal(t, 0.0, mech.EpsilonDelta().Delta)
}

func TestRandomizedResponseCoins_MostlyTruthfulKeepsOnes(t *testing.T) {
	// GIVEN a first coin that almost never lands heads
	mech, err := NewRandomizedResponseCoins(0.01, 0.9)
	require.NoError(t, err)

	// WHEN 1000 ones are randomized
	out, err := mech.Randomize(testRNG(1), ones(1000))
	require.NoError(t, err)

	// THEN nearly all answers stay 1
	assert.Equal(t, 1000, out.Len())
	assert.InDelta(t, 1.0, stat.Mean(out.Float64s(), nil), 0.05)
}

func TestRandomizedResponseCoins_DeterministicCoinIsUnbounded(t *testing.T) {
	mech, err := NewRandomizedResponseCoins(1, 1)
	require.NoError(t, err)
	assert.True(t, math.IsInf(mech.EpsilonDelta().Epsilon, 1))
}

func TestRandomizedResponseCoins_RejectsInvalidProbabilities(t *testing.T) {
	for _, p := range [][2]float64{{-0.1, 0.5}, {0.5, 1.1}, {math.NaN(), 0.5}} {
		_, err := NewRandomizedResponseCoins(p[0], p[1])
		assert.ErrorIs(t, err, ErrConfiguration, "probabilities %v", p)
	}
}

func TestRandomizedResponse_NonBinaryInputIsDomainError(t *testing.T) {
	tests := []struct {
		name string
		mech Mechanism
	}{
		{"coins", DefaultRandomizedResponseCoins()},
		{"binary", mustBinaryRR(t, 0.5, 0.5, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mech.Randomize(testRNG(2), Vector([]float64{0, 1, 2}))
			assert.ErrorIs(t, err, ErrDomain)
		})
	}
}

func TestRandomizedResponseBinary_ChannelEpsilonBound(t *testing.T) {
	tests := []struct {
		name    string
		f0, f1  float64
		epsilon float64
		wantErr bool
	}{
		{"fair channel costs nothing", 0.5, 0.5, 0.1, false},
		{"epsilon at the bound", 0.8, 0.8, math.Log(4) + 1e-12, false},
		{"epsilon below the bound", 0.8, 0.8, 1, true},
		{"inverting channel below its bound", 0.2, 0.2, 1, true},
		{"inverting channel at its bound", 0.2, 0.2, math.Log(4) + 1e-12, false},
		{"f0 of one", 1, 0.5, 10, true},
		{"f1 of zero", 0.5, 0, 10, true},
		{"NaN f0", math.NaN(), 0.5, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRandomizedResponseBinary(tt.f0, tt.f1, tt.epsilon)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRandomizeBinary_IdentityChannel(t *testing.T) {
	// GIVEN the channel that never flips a bit
	in := Vector([]float64{0, 1, 1, 0, 1})

	// WHEN it randomizes
	out, err := randomizeBinary(testRNG(3), in, 1, 1)

	// THEN the output equals the input
	require.NoError(t, err)
	assert.True(t, in.Equal(out), "got %s", out)
}

func TestRandomizeBinary_PreservesScalarShape(t *testing.T) {
	out, err := randomizeBinary(testRNG(4), Scalar(1), 0.7, 0.7)
	require.NoError(t, err)
	assert.True(t, out.IsScalar())
}

func mustBinaryRR(t *testing.T, f0, f1, epsilon float64) *RandomizedResponseBinary {
	t.Helper()
	m, err := NewRandomizedResponseBinary(f0, f1, epsilon)
	require.NoError(t, err)
	return m
}

// === Laplace ===

func TestLaplaceMechanism_NoiseAveragesOut(t *testing.T) {
	// GIVEN 1000 heights and a Laplace mechanism with scale 40
	data := make([]float64, 1000)
	heights := distuv.Normal{Mu: 175, Sigma: 7, Src: testRNG(5)}
	for i := range data {
		data[i] = heights.Rand()
	}
	mech, err := NewLaplaceMechanism(40, 1, nil)
	require.NoError(t, err)

	// WHEN every record is randomized
	out, err := mech.Randomize(testRNG(6), Vector(data))
	require.NoError(t, err)

	// THEN the records changed but their mean stays close
	assert.Equal(t, len(data), out.Len())
	assert.False(t, Vector(data).Equal(out))
	assert.Less(t, math.Abs(stat.Mean(data, nil)-stat.Mean(out.Float64s(), nil)), 5.0)
}

func TestLaplaceMechanism_AppliesQueryBeforeNoise(t *testing.T) {
	mech, err := NewLaplaceMechanism(1, 1, Mean{})
	require.NoError(t, err)

	out, err := mech.Randomize(testRNG(7), Vector([]float64{1, 2, 3, 4}))

	require.NoError(t, err)
	assert.True(t, out.IsScalar(), "mean query answers a scalar")
	assert.Equal(t, EpsilonDelta{Epsilon: 1}, mech.EpsilonDelta())
}

func TestLaplaceMechanism_ZeroSensitivityIsExact(t *testing.T) {
	mech, err := NewLaplaceMechanism(0, 1, nil)
	require.NoError(t, err)

	out, err := mech.Randomize(testRNG(8), Scalar(3))

	require.NoError(t, err)
	assert.Equal(t, 3.0, out.Float64())
}

func TestLaplaceMechanism_RejectsInvalidParameters(t *testing.T) {
	_, err := NewLaplaceMechanism(-1, 1, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewLaplaceMechanism(1, 0, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewLaplaceMechanism(math.Inf(1), 1, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

// === Gaussian ===

func TestGaussianMechanism_StdDev(t *testing.T) {
	mech, err := NewGaussianMechanism(2, EpsilonDelta{Epsilon: 0.5, Delta: 0.01}, nil)
	require.NoError(t, err)

	want := math.Sqrt(2*math.Log(1.25/0.01)) * 2 / 0.5
	assert.InDelta(t, want, mech.StdDev(), 1e-12)
	assert.Equal(t, EpsilonDelta{Epsilon: 0.5, Delta: 0.01}, mech.EpsilonDelta())
}

func TestGaussianMechanism_RejectsOutOfRangeCost(t *testing.T) {
	tests := []struct {
		name string
		cost EpsilonDelta
	}{
		{"zero epsilon", EpsilonDelta{Epsilon: 0, Delta: 0.1}},
		{"epsilon above one", EpsilonDelta{Epsilon: 1.5, Delta: 0.1}},
		{"zero delta", EpsilonDelta{Epsilon: 0.5, Delta: 0}},
		{"delta above one", EpsilonDelta{Epsilon: 0.5, Delta: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGaussianMechanism(1, tt.cost, nil)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestGaussianMechanism_NoiseMatchesStdDev(t *testing.T) {
	mech, err := NewGaussianMechanism(1, EpsilonDelta{Epsilon: 1, Delta: 0.1}, nil)
	require.NoError(t, err)

	out, err := mech.Randomize(testRNG(9), Vector(make([]float64, 20000)))

	require.NoError(t, err)
	assert.InDelta(t, 0, stat.Mean(out.Float64s(), nil), 0.1)
	assert.InEpsilon(t, mech.StdDev(), stat.StdDev(out.Float64s(), nil), 0.05)
}

// === Exponential ===

func closeToMean(v Value, r float64) float64 {
	return -math.Abs(stat.Mean(v.Float64s(), nil) - r)
}

func TestExponentialMechanism_FavoursHighUtility(t *testing.T) {
	space := []float64{0, 1, 2, 3, 4}
	mech, err := NewExponentialMechanism(closeToMean, space, 1, 2, 1)
	require.NoError(t, err)

	probs := mech.Probabilities(Vector([]float64{2, 2, 2}))

	assert.InDelta(t, 1.0, floats.Sum(probs), 1e-12)
	assert.Equal(t, 2, floats.MaxIdx(probs))
	assert.InDelta(t, probs[1], probs[3], 1e-12)
}

func TestExponentialMechanism_LargeUtilitiesDoNotOverflow(t *testing.T) {
	huge := func(_ Value, r float64) float64 { return 1e6 * r }
	mech, err := NewExponentialMechanism(huge, []float64{1, 2}, 1, 1, 1)
	require.NoError(t, err)

	probs := mech.Probabilities(Scalar(0))

	for _, p := range probs {
		assert.False(t, math.IsNaN(p))
	}
	assert.InDelta(t, 1.0, probs[1], 1e-12)
}

func TestExponentialMechanism_DrawsFromCopiedResponseSpace(t *testing.T) {
	// GIVEN a mechanism whose caller later rewrites the response space
	space := []float64{10, 20, 30}
	mech, err := NewExponentialMechanism(closeToMean, space, 1, 1, 50)
	require.NoError(t, err)
	space[0], space[1], space[2] = -1, -1, -1

	// WHEN it randomizes
	out, err := mech.Randomize(testRNG(10), Scalar(20))

	// THEN every draw comes from the original candidates
	require.NoError(t, err)
	assert.Equal(t, 50, out.Len())
	for _, x := range out.Float64s() {
		assert.Contains(t, []float64{10, 20, 30}, x)
	}
	assert.Equal(t, EpsilonDelta{Epsilon: 1}, mech.EpsilonDelta())
}

func TestExponentialMechanism_RejectsInvalidParameters(t *testing.T) {
	_, err := NewExponentialMechanism(nil, []float64{1}, 1, 1, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewExponentialMechanism(closeToMean, nil, 1, 1, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewExponentialMechanism(closeToMean, []float64{1}, 0, 1, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewExponentialMechanism(closeToMean, []float64{1}, 1, 1, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

// === Unrandomized ===

func TestUnrandomized_ReturnsCopy(t *testing.T) {
	in := Vector([]float64{1, 2, 3})

	out, err := Unrandomized{}.Randomize(nil, in)

	require.NoError(t, err)
	assert.True(t, in.Equal(out))
	_, private := Mechanism(Unrandomized{}).(PrivateMechanism)
	assert.False(t, private)
}

// === Budget values and errors ===

func TestParseEpsilonDelta(t *testing.T) {
	ed, err := ParseEpsilonDelta([]float64{0.5, 0.01})
	require.NoError(t, err)
	assert.Equal(t, EpsilonDelta{Epsilon: 0.5, Delta: 0.01}, ed)

	for _, bad := range [][]float64{{1}, {1, 2, 3}, {-1, 0}, {1, math.NaN()}, {math.Inf(1), 0}} {
		_, err := ParseEpsilonDelta(bad)
		assert.ErrorIs(t, err, ErrConfiguration, "pair %v", bad)
	}
}

func TestNewPrivacyBudget_NeedsPositiveEpsilon(t *testing.T) {
	_, err := NewPrivacyBudget(0, 0)
	assert.ErrorIs(t, err, ErrConfiguration)

	budget, err := NewPrivacyBudget(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "(1, 0)", budget.String())
}

func TestBudgetExceededError_MatchesSentinel(t *testing.T) {
	var err error = &BudgetExceededError{
		Property:  "scalar",
		Budget:    EpsilonDelta{Epsilon: 1},
		Requested: EpsilonDelta{Epsilon: 0.3},
		Spent:     EpsilonDelta{Epsilon: 0.9},
	}

	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.False(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), `"scalar"`)

	var exceeded *BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 0.3, exceeded.Requested.Epsilon)
}
