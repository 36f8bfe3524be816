package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a rejected configuration: a DP/non-DP pairing
	// mismatch between a policy and a node budget, a malformed (epsilon, delta)
	// pair, invalid mechanism parameters, or a query on an unconfigured property.
	ErrConfiguration = errors.New("configuration error")

	// ErrDomain marks input outside a mechanism's domain, e.g. non-binary data
	// given to a randomized response mechanism.
	ErrDomain = errors.New("domain error")

	// ErrBudgetExceeded is matched by every *BudgetExceededError.
	ErrBudgetExceeded = errors.New("privacy budget exceeded")
)

// configErrorf wraps ErrConfiguration with a formatted reason.
func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// BudgetExceededError is returned when a query would push a property past
// the node budget. The query released nothing and the ledger is unchanged.
type BudgetExceededError struct {
	Property  string
	Budget    EpsilonDelta
	Requested EpsilonDelta // cost of the denied query
	Spent     EpsilonDelta // basic-composition total before the attempt
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("privacy budget %s has been exceeded for property %q (requested %s, already spent %s)",
		e.Budget, e.Property, e.Requested, e.Spent)
}

// Is lets errors.Is(err, ErrBudgetExceeded) match.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
