package nn

import (
	"fmt"
	"math"
)

// Adam is the Adam optimizer with bias correction. Clip, when positive,
// rescales the gradients so their global L2 norm does not exceed it.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
	Clip  float64

	t    int
	m, v [][]float64
}

func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Steps reports how many updates have been applied.
func (a *Adam) Steps() int { return a.t }

// Step updates params in place from grads. The two slices must be aligned
// and keep the same order on every call.
func (a *Adam) Step(params, grads []*Tensor) error {
	if len(params) != len(grads) {
		return fmt.Errorf("adam: %d params but %d grads", len(params), len(grads))
	}
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, p.Len())
			a.v[i] = make([]float64, p.Len())
		}
	}
	if len(a.m) != len(params) {
		return fmt.Errorf("adam: parameter count changed from %d to %d", len(a.m), len(params))
	}

	scale := 1.0
	if a.Clip > 0 {
		if n := GlobalNorm(grads); n > a.Clip {
			scale = a.Clip / n
		}
	}

	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range params {
		g := grads[i]
		if !p.SameShape(g) {
			return fmt.Errorf("adam: grad %d shape %s does not match param %s", i, ShapeString(g.Shape), ShapeString(p.Shape))
		}
		m, v := a.m[i], a.v[i]
		for k, gv := range g.Data {
			gv *= scale
			m[k] = a.Beta1*m[k] + (1-a.Beta1)*gv
			v[k] = a.Beta2*v[k] + (1-a.Beta2)*gv*gv
			mh := m[k] / bc1
			vh := v[k] / bc2
			p.Data[k] -= a.LR * mh / (math.Sqrt(vh) + a.Eps)
		}
	}
	return nil
}
