package sim

import (
	"fmt"
	"slices"
)

// Value is a protected numeric value: either a single scalar or a flat vector.
// Mechanisms preserve the shape they are given, so a scalar in is a scalar out.
type Value struct {
	data   []float64
	scalar bool
}

// Scalar wraps a single number.
func Scalar(x float64) Value {
	return Value{data: []float64{x}, scalar: true}
}

// Vector wraps a copy of xs.
func Vector(xs []float64) Value {
	return Value{data: slices.Clone(xs)}
}

// vectorOwned wraps xs without copying. Callers must not retain xs.
func vectorOwned(xs []float64) Value {
	return Value{data: xs}
}

// IsScalar reports whether v holds a single scalar.
func (v Value) IsScalar() bool { return v.scalar }

// Len returns the number of elements (1 for a scalar).
func (v Value) Len() int { return len(v.data) }

// Float64 returns the scalar held by v, or the first element of a vector.
// Returns 0 for an empty vector.
func (v Value) Float64() float64 {
	if len(v.data) == 0 {
		return 0
	}
	return v.data[0]
}

// Float64s returns a copy of the elements of v.
func (v Value) Float64s() []float64 {
	return slices.Clone(v.data)
}

// At returns element i.
func (v Value) At(i int) float64 { return v.data[i] }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	return Value{data: slices.Clone(v.data), scalar: v.scalar}
}

// Equal reports whether v and other have the same shape and elements.
func (v Value) Equal(other Value) bool {
	return v.scalar == other.scalar && slices.Equal(v.data, other.data)
}

// withData returns a value of the same shape as v holding data.
func (v Value) withData(data []float64) Value {
	return Value{data: data, scalar: v.scalar && len(data) == 1}
}

func (v Value) String() string {
	if v.scalar {
		return fmt.Sprintf("%g", v.Float64())
	}
	return fmt.Sprintf("%v", v.data)
}

// isBinary reports whether every element of v is 0 or 1.
func (v Value) isBinary() bool {
	for _, x := range v.data {
		if x != 0 && x != 1 {
			return false
		}
	}
	return true
}
