package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierRegistry_RegisterRelease(t *testing.T) {
	registry := NewIdentifierRegistry()

	release, err := registry.Register("heights")
	require.NoError(t, err)
	assert.True(t, registry.InUse("heights"))

	_, err = registry.Register("heights")
	assert.ErrorIs(t, err, ErrConfiguration, "identifier already in use")

	release()
	release()
	assert.False(t, registry.InUse("heights"))
	_, err = registry.Register("heights")
	assert.NoError(t, err, "released identifier can be reused")

	_, err = registry.Register("")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFederateArray_SplitsContiguously(t *testing.T) {
	// GIVEN ten values split across three nodes
	registry := NewIdentifierRegistry()
	data := Vector([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	fd, err := FederateArray(registry, NewPartitionedRNG(NewSimulationKey(1)), "values", data, 3, NodeConfig{})
	require.NoError(t, err)
	defer fd.Close()

	// WHEN every node is queried without protection
	require.NoError(t, fd.ConfigureDataAccess(UnprotectedAccess()))
	answers, err := fd.Query()
	require.NoError(t, err)

	// THEN the shares are contiguous and cover the input exactly once
	assert.Equal(t, 3, fd.NumNodes())
	var joined []float64
	for _, a := range answers {
		joined = append(joined, a.Float64s()...)
	}
	assert.Equal(t, data.Float64s(), joined)
	assert.Equal(t, []float64{0, 1, 2}, answers[0].Float64s())
	assert.Equal(t, "values-2", fd.Node(2).ID())
}

func TestFederateArray_RejectsBadNodeCounts(t *testing.T) {
	registry := NewIdentifierRegistry()
	rng := NewPartitionedRNG(NewSimulationKey(1))

	_, err := FederateArray(registry, rng, "a", Vector([]float64{1, 2}), 0, NodeConfig{})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = FederateArray(registry, rng, "a", Vector([]float64{1, 2}), 3, NodeConfig{})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, registry.InUse("a"))
}

func TestFederatedData_IdentifierIsUnique(t *testing.T) {
	registry := NewIdentifierRegistry()
	first, err := NewFederatedData(registry, "dataset")
	require.NoError(t, err)

	_, err = NewFederatedData(registry, "dataset")
	assert.ErrorIs(t, err, ErrConfiguration)

	first.Close()
	second, err := NewFederatedData(registry, "dataset")
	require.NoError(t, err)
	second.Close()
}

func TestFederatedData_QueryJoinsNodeErrors(t *testing.T) {
	// GIVEN two budgeted nodes that can each afford one query
	registry := NewIdentifierRegistry()
	budget := &EpsilonDelta{Epsilon: 1}
	fd, err := FederateArray(registry, NewPartitionedRNG(NewSimulationKey(2)), "x", Vector([]float64{1, 2, 3, 4}), 2, NodeConfig{Budget: budget})
	require.NoError(t, err)
	defer fd.Close()
	require.NoError(t, fd.ConfigureDataAccess(laplaceAccess(t, 0.75)))

	// WHEN the federation is queried twice
	answers, err := fd.Query()
	require.NoError(t, err)
	assert.Len(t, answers, 2)
	_, err = fd.Query()

	// THEN the second query reports every node's denial
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "x-0")
	assert.Contains(t, err.Error(), "x-1")
}

func TestFederatedData_ConfigureReportsPairingErrors(t *testing.T) {
	registry := NewIdentifierRegistry()
	fd, err := FederateArray(registry, NewPartitionedRNG(NewSimulationKey(3)), "x", Vector([]float64{1, 2}), 2, NodeConfig{})
	require.NoError(t, err)
	defer fd.Close()

	assert.ErrorIs(t, fd.ConfigureDataAccess(laplaceAccess(t, 1)), ErrConfiguration)
}

func TestFederatedData_ApplyFederatedTransformation(t *testing.T) {
	registry := NewIdentifierRegistry()
	fd, err := FederateArray(registry, NewPartitionedRNG(NewSimulationKey(4)), "x", Vector([]float64{1, 2, 3, 4}), 2, NodeConfig{})
	require.NoError(t, err)
	defer fd.Close()

	negate := func(v Value) Value {
		xs := v.Float64s()
		for i := range xs {
			xs[i] = -xs[i]
		}
		return Vector(xs)
	}
	require.NoError(t, fd.ApplyFederatedTransformation(negate))
	require.NoError(t, fd.ConfigureDataAccess(UnprotectedAccess()))

	answers, err := fd.Query()
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -2}, answers[0].Float64s())
	assert.Equal(t, []float64{-3, -4}, answers[1].Float64s())
}
