package nn

import (
	"fmt"
	"math/rand/v2"
)

// Embedding is a lookup table of Rows() vectors of width Dim().
type Embedding struct {
	Weight *Tensor
}

// NewEmbedding allocates a table initialised from N(0, 1). A nil rng leaves
// it zero.
func NewEmbedding(rows, dim int, rng *rand.Rand) *Embedding {
	e := &Embedding{Weight: NewTensor(rows, dim)}
	normal(e.Weight, rng)
	return e
}

func (e *Embedding) Rows() int { return e.Weight.Shape[0] }
func (e *Embedding) Dim() int  { return e.Weight.Shape[1] }

// Lookup returns a view of row idx.
func (e *Embedding) Lookup(idx int) ([]float64, error) {
	if idx < 0 || idx >= e.Rows() {
		return nil, fmt.Errorf("embedding index %d outside [0,%d)", idx, e.Rows())
	}
	return e.Weight.Row(idx), nil
}

// Backward adds dout into the gradient row for idx.
func (e *Embedding) Backward(idx int, dout []float64, g *Embedding) {
	row := g.Weight.Row(idx)
	for k, d := range dout {
		row[k] += d
	}
}
