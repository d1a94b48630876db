// Package nn implements the small set of dense layers the knowledge-tracing
// models need: embeddings, affine maps, a single-layer LSTM with
// backpropagation through time, dropout and the Adam optimizer.
//
// Parameters use PyTorch layouts (Linear weights are [out, in], LSTM gates
// are stacked i, f, g, o) so checkpoints map one-to-one onto state dicts.
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NamedTensor pairs a parameter with its state-dict name.
type NamedTensor struct {
	Name   string
	Tensor *Tensor
}

func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, numel(shape))}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) Len() int { return len(t.Data) }

// Row returns a view of row i of a 2-D tensor.
func (t *Tensor) Row(i int) []float64 {
	cols := t.Shape[len(t.Shape)-1]
	return t.Data[i*cols : (i+1)*cols]
}

func (t *Tensor) ZerosLike() *Tensor { return NewTensor(t.Shape...) }

func (t *Tensor) Clone() *Tensor {
	out := t.ZerosLike()
	copy(out.Data, t.Data)
	return out
}

func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

func (t *Tensor) SameShape(o *Tensor) bool {
	return ShapeEqual(t.Shape, o.Shape)
}

// AddScaled sets t += s*o. Shapes must match.
func (t *Tensor) AddScaled(o *Tensor, s float64) {
	for i, v := range o.Data {
		t.Data[i] += s * v
	}
}

func ShapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ShapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// uniform fills t with U(-bound, bound).
func uniform(t *Tensor, bound float64, rng *rand.Rand) {
	if rng == nil {
		return
	}
	for i := range t.Data {
		t.Data[i] = (rng.Float64()*2 - 1) * bound
	}
}

// normal fills t with N(0, 1).
func normal(t *Tensor, rng *rand.Rand) {
	if rng == nil {
		return
	}
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()
	}
}

// ZerosLike allocates a zeroed gradient buffer for every tensor in ps.
func ZerosLike(ps []NamedTensor) []*Tensor {
	out := make([]*Tensor, len(ps))
	for i, p := range ps {
		out[i] = p.Tensor.ZerosLike()
	}
	return out
}

// GlobalNorm is the L2 norm over all gradients.
func GlobalNorm(gs []*Tensor) float64 {
	var s float64
	for _, g := range gs {
		for _, v := range g.Data {
			s += v * v
		}
	}
	return math.Sqrt(s)
}
