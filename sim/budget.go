package sim

import (
	"fmt"
	"math"
)

// EpsilonDelta is a differential-privacy cost or budget.
type EpsilonDelta struct {
	Epsilon float64 `yaml:"epsilon"`
	Delta   float64 `yaml:"delta"`
}

// Add returns the component-wise sum.
func (ed EpsilonDelta) Add(other EpsilonDelta) EpsilonDelta {
	ed.Epsilon += other.Epsilon
	ed.Delta += other.Delta
	return ed
}

func (ed EpsilonDelta) String() string {
	return fmt.Sprintf("(%g, %g)", ed.Epsilon, ed.Delta)
}

// ValidateEpsilonDelta checks that both components are finite and non-negative.
// Every constructor that accepts a cost goes through this check.
func ValidateEpsilonDelta(ed EpsilonDelta) error {
	if math.IsNaN(ed.Epsilon) || math.IsInf(ed.Epsilon, 0) {
		return configErrorf("epsilon must be a finite number, got %f", ed.Epsilon)
	}
	if math.IsNaN(ed.Delta) || math.IsInf(ed.Delta, 0) {
		return configErrorf("delta must be a finite number, got %f", ed.Delta)
	}
	if ed.Epsilon < 0 {
		return configErrorf("epsilon must be non-negative, got %f", ed.Epsilon)
	}
	if ed.Delta < 0 {
		return configErrorf("delta must be non-negative, got %f", ed.Delta)
	}
	return nil
}

// ParseEpsilonDelta converts a raw [epsilon, delta] pair, as found in CLI
// flags and YAML lists, into an EpsilonDelta.
func ParseEpsilonDelta(pair []float64) (EpsilonDelta, error) {
	if len(pair) != 2 {
		return EpsilonDelta{}, configErrorf("epsilon_delta must have exactly 2 elements, got %d", len(pair))
	}
	ed := EpsilonDelta{Epsilon: pair[0], Delta: pair[1]}
	if err := ValidateEpsilonDelta(ed); err != nil {
		return EpsilonDelta{}, err
	}
	return ed, nil
}

// NewPrivacyBudget validates a node budget. Unlike a mechanism cost, a
// budget needs a strictly positive epsilon.
func NewPrivacyBudget(epsilon, delta float64) (EpsilonDelta, error) {
	ed := EpsilonDelta{Epsilon: epsilon, Delta: delta}
	if err := ValidateEpsilonDelta(ed); err != nil {
		return EpsilonDelta{}, err
	}
	if ed.Epsilon == 0 {
		return EpsilonDelta{}, configErrorf("budget epsilon must be positive")
	}
	return ed, nil
}
