package sim

import (
	"math/rand/v2"
)

// Mechanism randomizes a value before it leaves a node.
// Implementations are immutable after construction and draw all randomness
// from the stream they are handed, so a seeded run is reproducible.
type Mechanism interface {
	Randomize(rng *rand.Rand, v Value) (Value, error)
}

// PrivateMechanism is a Mechanism with a known (epsilon, delta) cost.
// Only private mechanisms may be attached to a node with a budget.
type PrivateMechanism interface {
	Mechanism
	EpsilonDelta() EpsilonDelta
}

// Unrandomized releases data unchanged. It carries no privacy cost and is
// the mechanism of every unprotected access.
type Unrandomized struct{}

func (Unrandomized) Randomize(_ *rand.Rand, v Value) (Value, error) {
	return v.Clone(), nil
}
