package nn

import (
	"math"
	"math/rand/v2"
)

// LSTM is a single-layer long short-term memory cell with PyTorch's gate
// layout: rows [0,H) input, [H,2H) forget, [2H,3H) cell candidate, [3H,4H)
// output.
type LSTM struct {
	WeightIH *Tensor // [4H, in]
	WeightHH *Tensor // [4H, H]
	BiasIH   *Tensor // [4H]
	BiasHH   *Tensor // [4H]
}

// NewLSTM allocates a cell initialised from U(-1/sqrt(H), 1/sqrt(H)). A nil
// rng leaves it zero.
func NewLSTM(in, hidden int, rng *rand.Rand) *LSTM {
	l := &LSTM{
		WeightIH: NewTensor(4*hidden, in),
		WeightHH: NewTensor(4*hidden, hidden),
		BiasIH:   NewTensor(4 * hidden),
		BiasHH:   NewTensor(4 * hidden),
	}
	bound := 1 / math.Sqrt(float64(hidden))
	uniform(l.WeightIH, bound, rng)
	uniform(l.WeightHH, bound, rng)
	uniform(l.BiasIH, bound, rng)
	uniform(l.BiasHH, bound, rng)
	return l
}

func (l *LSTM) InputSize() int  { return l.WeightIH.Shape[1] }
func (l *LSTM) HiddenSize() int { return l.WeightHH.Shape[1] }

// LSTMTrace holds the per-step activations Backward needs.
type LSTMTrace struct {
	X          [][]float64
	I, F, G, O [][]float64
	C, TanhC   [][]float64
	H          [][]float64
}

// Forward runs the recurrence over xs starting from a zero state and returns
// the hidden state of every step. Each xs[t] must have InputSize() values.
// The trace is nil unless keep is set.
func (l *LSTM) Forward(xs [][]float64, keep bool) ([][]float64, *LSTMTrace) {
	H, in := l.HiddenSize(), l.InputSize()
	T := len(xs)
	hs := make([][]float64, T)

	var tr *LSTMTrace
	if keep {
		tr = &LSTMTrace{
			X: xs,
			I: make([][]float64, T), F: make([][]float64, T),
			G: make([][]float64, T), O: make([][]float64, T),
			C: make([][]float64, T), TanhC: make([][]float64, T),
			H: hs,
		}
	}

	h := make([]float64, H)
	c := make([]float64, H)
	pre := make([]float64, 4*H)
	for t, x := range xs {
		for j := 0; j < 4*H; j++ {
			s := l.BiasIH.Data[j] + l.BiasHH.Data[j]
			wi := l.WeightIH.Data[j*in : (j+1)*in]
			for k, v := range x {
				s += wi[k] * v
			}
			wh := l.WeightHH.Data[j*H : (j+1)*H]
			for k, v := range h {
				s += wh[k] * v
			}
			pre[j] = s
		}

		nh := make([]float64, H)
		nc := make([]float64, H)
		var ig, fg, gg, og, tcs []float64
		if keep {
			ig, fg, gg, og, tcs = make([]float64, H), make([]float64, H), make([]float64, H), make([]float64, H), make([]float64, H)
		}
		for k := 0; k < H; k++ {
			i := Sigmoid(pre[k])
			f := Sigmoid(pre[H+k])
			g := math.Tanh(pre[2*H+k])
			o := Sigmoid(pre[3*H+k])
			nc[k] = f*c[k] + i*g
			tc := math.Tanh(nc[k])
			nh[k] = o * tc
			if keep {
				ig[k], fg[k], gg[k], og[k], tcs[k] = i, f, g, o, tc
			}
		}
		if keep {
			tr.I[t], tr.F[t], tr.G[t], tr.O[t], tr.TanhC[t], tr.C[t] = ig, fg, gg, og, tcs, nc
		}
		h, c = nh, nc
		hs[t] = nh
	}
	return hs, tr
}

// Backward propagates dhs, the loss gradient with respect to each step's
// hidden output (nil entries count as zero), back through time. Parameter
// gradients are accumulated into g; the gradient for each step's input is
// returned.
func (l *LSTM) Backward(tr *LSTMTrace, dhs [][]float64, g *LSTM) [][]float64 {
	H, in := l.HiddenSize(), l.InputSize()
	T := len(tr.H)
	dxs := make([][]float64, T)
	zero := make([]float64, H)
	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	da := make([]float64, 4*H)

	for t := T - 1; t >= 0; t-- {
		hPrev, cPrev := zero, zero
		if t > 0 {
			hPrev, cPrev = tr.H[t-1], tr.C[t-1]
		}
		for k := 0; k < H; k++ {
			dh := dhNext[k]
			if dhs[t] != nil {
				dh += dhs[t][k]
			}
			i, f, gg, o, tc := tr.I[t][k], tr.F[t][k], tr.G[t][k], tr.O[t][k], tr.TanhC[t][k]
			do := dh * tc
			dc := dcNext[k] + dh*o*(1-tc*tc)
			di := dc * gg
			dg := dc * i
			df := dc * cPrev[k]
			dcNext[k] = dc * f

			da[k] = di * i * (1 - i)
			da[H+k] = df * f * (1 - f)
			da[2*H+k] = dg * (1 - gg*gg)
			da[3*H+k] = do * o * (1 - o)
		}

		x := tr.X[t]
		dx := make([]float64, in)
		for k := range dhNext {
			dhNext[k] = 0
		}
		for j := 0; j < 4*H; j++ {
			a := da[j]
			if a == 0 {
				continue
			}
			g.BiasIH.Data[j] += a
			g.BiasHH.Data[j] += a
			wi := l.WeightIH.Data[j*in : (j+1)*in]
			gwi := g.WeightIH.Data[j*in : (j+1)*in]
			for k := 0; k < in; k++ {
				gwi[k] += a * x[k]
				dx[k] += wi[k] * a
			}
			wh := l.WeightHH.Data[j*H : (j+1)*H]
			gwh := g.WeightHH.Data[j*H : (j+1)*H]
			for k := 0; k < H; k++ {
				gwh[k] += a * hPrev[k]
				dhNext[k] += wh[k] * a
			}
		}
		dxs[t] = dx
	}
	return dxs
}
