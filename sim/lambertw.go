package sim

import "math"

// LambertWm1 evaluates the lower real branch W₋₁ of the Lambert W function,
// the solution w <= -1 of w·eʷ = x, for x in [-1/e, 0).
// Returns NaN outside that domain.
//
// gonum's mathext has no Lambert W, so this uses Halley's iteration from a
// branch-point series (x near -1/e) or an asymptotic log guess.
func LambertWm1(x float64) float64 {
	const branchPoint = -1 / math.E
	if math.IsNaN(x) || x < branchPoint || x >= 0 {
		return math.NaN()
	}
	if x-branchPoint < 1e-15 {
		return -1
	}

	var w float64
	if x < -0.25 {
		p := -math.Sqrt(2 * (1 + math.E*x))
		w = -1 + p - p*p/3 + 11.0/72.0*p*p*p
	} else {
		l1 := math.Log(-x)
		w = l1 - math.Log(-l1)
	}

	for range 64 {
		ew := math.Exp(w)
		f := w*ew - x
		step := f / (ew*(w+1) - (w+2)*f/(2*w+2))
		w -= step
		if math.Abs(step) <= 1e-15*(1+math.Abs(w)) {
			break
		}
	}
	return w
}
