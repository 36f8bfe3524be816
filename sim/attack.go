package sim

import (
	"math/rand/v2"
	"slices"

	"github.com/sirupsen/logrus"
)

// PoisoningAttack simulates adversarial nodes by applying a transformation
// to the shares of a random subset of a federated dataset's nodes.
type PoisoningAttack struct {
	percentage  float64
	adversaries []int
}

// NewPoisoningAttack turns percentage (in [0,100]) of the nodes adversarial.
func NewPoisoningAttack(percentage float64) (*PoisoningAttack, error) {
	if !(percentage >= 0 && percentage <= 100) {
		return nil, configErrorf("adversary percentage must be in [0,100], got %g", percentage)
	}
	return &PoisoningAttack{percentage: percentage}, nil
}

// Apply picks floor(percentage/100 * nodes) adversaries with rng and runs t
// on each adversary's share. The picked indices are kept in Adversaries.
func (a *PoisoningAttack) Apply(rng *rand.Rand, f *FederatedData, t Transformation) error {
	n := f.NumNodes()
	k := int(a.percentage / 100 * float64(n))
	picked := rng.Perm(n)[:k]
	slices.Sort(picked)
	a.adversaries = picked
	logrus.Debugf("attack %s: poisoning %d of %d nodes %v", f.Identifier(), k, n, picked)
	return f.applyToNodes(picked, t)
}

// Adversaries returns the node indices picked by the last Apply, ascending.
func (a *PoisoningAttack) Adversaries() []int { return slices.Clone(a.adversaries) }

// ShuffleRecords returns a transformation that permutes a share's records
// with rng, breaking any pairing between records and their position.
func ShuffleRecords(rng *rand.Rand) Transformation {
	return func(v Value) Value {
		xs := v.Float64s()
		rng.Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
		return v.withData(xs)
	}
}
