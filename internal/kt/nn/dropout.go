package nn

import "math/rand/v2"

// DropoutMask draws an inverted-dropout mask of n multipliers: 0 with
// probability p, 1/(1-p) otherwise.
func DropoutMask(n int, p float64, rng *rand.Rand) []float64 {
	mask := make([]float64, n)
	if p <= 0 {
		for i := range mask {
			mask[i] = 1
		}
		return mask
	}
	if p >= 1 {
		return mask
	}
	keep := 1 / (1 - p)
	for i := range mask {
		if rng.Float64() >= p {
			mask[i] = keep
		}
	}
	return mask
}
