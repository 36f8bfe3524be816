package sim

import (
	"gonum.org/v1/gonum/stat"
)

// Query maps a raw value to the derived value a node is willing to answer.
// Implementations must not modify their argument.
type Query interface {
	Get(v Value) Value
}

// Identity returns the value unchanged.
type Identity struct{}

func (Identity) Get(v Value) Value { return v.Clone() }

// Mean returns the arithmetic mean of the elements as a scalar.
type Mean struct{}

func (Mean) Get(v Value) Value {
	if v.Len() == 0 {
		return Scalar(0)
	}
	return Scalar(stat.Mean(v.data, nil))
}

// QueryFunc adapts an ordinary function to the Query interface.
type QueryFunc func(v Value) Value

func (f QueryFunc) Get(v Value) Value { return f(v) }
