package nn

import "math"

// Sigmoid is the logistic function, evaluated without overflow for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// SigmoidSlice returns a new slice with Sigmoid applied element-wise.
func SigmoidSlice(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = Sigmoid(x)
	}
	return out
}
