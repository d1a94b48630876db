package nn

import (
	"math"
	"math/rand/v2"
)

// Linear is an affine map y = Wx + b with W stored as [out, in].
type Linear struct {
	Weight *Tensor
	Bias   *Tensor
}

// NewLinear allocates a layer initialised from U(-1/sqrt(in), 1/sqrt(in)).
// A nil rng leaves the parameters zero.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	l := &Linear{Weight: NewTensor(out, in), Bias: NewTensor(out)}
	bound := 1 / math.Sqrt(float64(in))
	uniform(l.Weight, bound, rng)
	uniform(l.Bias, bound, rng)
	return l
}

func (l *Linear) In() int  { return l.Weight.Shape[1] }
func (l *Linear) Out() int { return l.Weight.Shape[0] }

// Forward writes Wx + b into out, which must have length Out().
func (l *Linear) Forward(x, out []float64) {
	in := l.In()
	for o := range out {
		w := l.Weight.Data[o*in : (o+1)*in]
		s := l.Bias.Data[o]
		for k, v := range x {
			s += w[k] * v
		}
		out[o] = s
	}
}

// Backward accumulates dW and db into g and, when dx is non-nil, adds
// Wᵀ·dout into dx.
func (l *Linear) Backward(x, dout, dx []float64, g *Linear) {
	in := l.In()
	for o, d := range dout {
		if d == 0 {
			continue
		}
		g.Bias.Data[o] += d
		gw := g.Weight.Data[o*in : (o+1)*in]
		for k, v := range x {
			gw[k] += d * v
		}
		if dx != nil {
			w := l.Weight.Data[o*in : (o+1)*in]
			for k := range dx {
				dx[k] += w[k] * d
			}
		}
	}
}
