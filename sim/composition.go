package sim

import (
	"fmt"
	"math"
)

// CompositionRule decides whether a sequence of accesses to one property
// stays within a node budget.
type CompositionRule interface {
	// Exceeded reports whether history, which already includes the access
	// being attempted, breaks the budget.
	Exceeded(history []EpsilonDelta, budget EpsilonDelta) bool
}

// BasicComposition: costs add up. Exceeded iff the summed epsilon or the
// summed delta is larger than the budget's.
type BasicComposition struct{}

func (BasicComposition) Exceeded(history []EpsilonDelta, budget EpsilonDelta) bool {
	spent := sumCosts(history)
	return exceeds(spent.Epsilon, budget.Epsilon) || exceeds(spent.Delta, budget.Delta)
}

// AdvancedComposition is the heterogeneous advanced composition bound of
// Kairouz, Oh and Viswanath, "The Composition Theorem for Differential
// Privacy" (Theorem 3.5). It only applies for 0 < budget delta < 1/e; outside
// that range it reports every history as exceeded.
type AdvancedComposition struct{}

// advancedCompositionValid reports whether the theorem holds for budget delta.
func advancedCompositionValid(delta float64) bool {
	return delta > 0 && delta < math.Exp(-1)
}

func (AdvancedComposition) Exceeded(history []EpsilonDelta, budget EpsilonDelta) bool {
	if !advancedCompositionValid(budget.Delta) {
		return true
	}
	eps, delta := budget.Epsilon, budget.Delta
	h := eps * eps / (28.04 * math.Log(1/delta))

	var a, sumSq, sumDelta float64
	for _, c := range history {
		a += c.Epsilon * (math.Exp(c.Epsilon) - 1)
		sumSq += c.Epsilon * c.Epsilon
		sumDelta += c.Delta
	}
	a *= 0.5
	b := sumSq + h
	cc := 2 + math.Log(sumSq/h+1)
	k := a + math.Sqrt(b*cc*math.Log(2/delta))
	return exceeds(k, eps) || exceeds(sumDelta, delta/2)
}

// AdaptiveComposition always evaluates basic composition and, when the
// budget delta allows it, advanced composition too. An access is granted if
// either theorem certifies it.
type AdaptiveComposition struct{}

func (AdaptiveComposition) Exceeded(history []EpsilonDelta, budget EpsilonDelta) bool {
	if !(BasicComposition{}).Exceeded(history, budget) {
		return false
	}
	if !advancedCompositionValid(budget.Delta) {
		return true
	}
	return (AdvancedComposition{}).Exceeded(history, budget)
}

// ValidCompositionRules is the set of recognized composition rule names.
// Shared by scenario validation and NewCompositionRule().
var ValidCompositionRules = map[string]bool{"": true, "basic": true, "advanced": true, "adaptive": true}

// IsValidCompositionRule reports whether name is a recognized composition rule.
func IsValidCompositionRule(name string) bool {
	return ValidCompositionRules[name]
}

// NewCompositionRule creates a composition rule by name.
// An empty string defaults to AdaptiveComposition.
// Panics on unrecognized names.
func NewCompositionRule(name string) CompositionRule {
	if !IsValidCompositionRule(name) {
		panic(fmt.Sprintf("unknown composition rule %q", name))
	}
	switch name {
	case "", "adaptive":
		return AdaptiveComposition{}
	case "basic":
		return BasicComposition{}
	case "advanced":
		return AdvancedComposition{}
	default:
		panic(fmt.Sprintf("unhandled composition rule %q", name))
	}
}

// budgetTolerance absorbs rounding in summed costs, so that k accesses of
// cost E/k fit a budget of exactly E.
const budgetTolerance = 1e-9

// exceeds reports whether spent is over limit by more than budgetTolerance
// relative to limit. A zero limit still rejects any positive spend.
func exceeds(spent, limit float64) bool {
	return spent > limit*(1+budgetTolerance)
}

func sumCosts(history []EpsilonDelta) EpsilonDelta {
	var total EpsilonDelta
	for _, c := range history {
		total = total.Add(c)
	}
	return total
}
