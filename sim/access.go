package sim

import (
	"math/rand/v2"
)

// AccessKind tags an AccessPolicy as unprotected or differentially private.
type AccessKind int

const (
	// AccessUnprotected releases the query answer without touching the ledger.
	AccessUnprotected AccessKind = iota
	// AccessDifferentiallyPrivate charges the mechanism's cost to the ledger.
	AccessDifferentiallyPrivate
)

func (k AccessKind) String() string {
	switch k {
	case AccessUnprotected:
		return "unprotected"
	case AccessDifferentiallyPrivate:
		return "differentially-private"
	default:
		return "unknown"
	}
}

// AccessPolicy defines how one property of a node may be read: a query
// applied to the raw value followed by a mechanism applied to the answer.
// A policy is differentially private exactly when its mechanism is a
// PrivateMechanism; its cost is captured when the policy is built.
type AccessPolicy struct {
	kind      AccessKind
	query     Query
	mechanism Mechanism
	cost      EpsilonDelta
}

// NewAccessPolicy combines a query and a mechanism. At least one must be
// non-nil: a nil query is Identity and a nil mechanism is Unrandomized.
func NewAccessPolicy(query Query, mechanism Mechanism) (AccessPolicy, error) {
	if query == nil && mechanism == nil {
		return AccessPolicy{}, configErrorf("an access policy needs a query, a mechanism, or both")
	}
	if query == nil {
		query = Identity{}
	}
	if mechanism == nil {
		mechanism = Unrandomized{}
	}
	p := AccessPolicy{kind: AccessUnprotected, query: query, mechanism: mechanism}
	if private, ok := mechanism.(PrivateMechanism); ok {
		cost := private.EpsilonDelta()
		if err := ValidateEpsilonDelta(cost); err != nil {
			return AccessPolicy{}, err
		}
		p.kind = AccessDifferentiallyPrivate
		p.cost = cost
	}
	return p, nil
}

// UnprotectedAccess releases the plain value.
func UnprotectedAccess() AccessPolicy {
	return AccessPolicy{kind: AccessUnprotected, query: Identity{}, mechanism: Unrandomized{}}
}

// PrivateAccess applies mechanism directly to the plain value.
func PrivateAccess(mechanism PrivateMechanism) (AccessPolicy, error) {
	if mechanism == nil {
		return AccessPolicy{}, configErrorf("private access needs a mechanism")
	}
	return NewAccessPolicy(nil, mechanism)
}

// Kind returns the policy tag.
func (p AccessPolicy) Kind() AccessKind { return p.kind }

// EpsilonDelta returns the cost charged per access and whether the policy is
// differentially private at all.
func (p AccessPolicy) EpsilonDelta() (EpsilonDelta, bool) {
	return p.cost, p.kind == AccessDifferentiallyPrivate
}

// apply runs the query and then the mechanism.
func (p AccessPolicy) apply(rng *rand.Rand, v Value) (Value, error) {
	return p.mechanism.Randomize(rng, p.query.Get(v))
}

func (p AccessPolicy) configured() bool { return p.query != nil && p.mechanism != nil }
