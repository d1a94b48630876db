package train

import (
	"math"

	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
)

// Loss splits a batch loss into its terms. Terms are already weighted, so
// Total is their sum.
type Loss struct {
	Next float64
	Curr float64
	W1   float64
	W2   float64
}

func (l Loss) Total() float64 { return l.Next + l.Curr + l.W1 + l.W2 }

func (l *Loss) add(o Loss) {
	l.Next += o.Next
	l.Curr += o.Curr
	l.W1 += o.W1
	l.W2 += o.W2
}

// batchCounts returns the number of masked steps and of consecutive masked
// pairs (t-1, t) across the batch. Every term is averaged over these.
func batchCounts(batch []dataset.Shifted) (steps, pairs int) {
	for _, s := range batch {
		for t, ok := range s.Mask {
			if !ok {
				continue
			}
			steps++
			if t > 0 {
				pairs++
			}
		}
	}
	return steps, pairs
}

// bce matches torch's binary_cross_entropy: log terms are clamped at -100.
func bce(y float64, r int) float64 {
	if r == 1 {
		return -math.Max(math.Log(y), -100)
	}
	return -math.Max(math.Log(1-y), -100)
}

// bceGrad is d bce / d y with torch's 1e-12 floor on the denominator.
func bceGrad(y float64, r int) float64 {
	return (y - float64(r)) / math.Max(y*(1-y), 1e-12)
}

// objective scores one sequence's pass against its shifted targets and
// returns dLoss/dOut. steps and pairs are the batch-wide counts.
func objective(v model.Variant, h model.Hyperparameters, s dataset.Shifted, out [][]float64, steps, pairs int) (Loss, [][]float64) {
	var l Loss
	d := make([][]float64, len(out))
	for t := range d {
		d[t] = make([]float64, h.NumQuestions)
	}
	if steps == 0 {
		return l, d
	}
	n := float64(steps)

	if v == model.VariantBaseline {
		for t, y := range out {
			if !s.Mask[t] {
				continue
			}
			q, r := s.QShift[t], s.RShift[t]
			p := nn.Sigmoid(y[q])
			l.Next += bce(p, r) / n
			d[t][q] += (p - float64(r)) / n
		}
		return l, d
	}

	for t, y := range out {
		if !s.Mask[t] {
			continue
		}
		qn, rn := s.QShift[t], s.RShift[t]
		l.Next += bce(y[qn], rn) / n
		d[t][qn] += bceGrad(y[qn], rn) / n

		if h.LambdaR > 0 {
			qc, rc := s.Q[t], s.R[t]
			l.Curr += h.LambdaR * bce(y[qc], rc) / n
			d[t][qc] += h.LambdaR * bceGrad(y[qc], rc) / n
		}
	}

	if pairs == 0 || (h.LambdaW1 == 0 && h.LambdaW2 == 0) {
		return l, d
	}
	scale := float64(pairs) * float64(h.NumQuestions)
	for t := 1; t < len(out); t++ {
		if !s.Mask[t] {
			continue
		}
		var l1, l2 float64
		for k := range out[t] {
			diff := out[t][k] - out[t-1][k]
			l1 += math.Abs(diff)
			l2 += diff * diff
			g := (h.LambdaW1*sign(diff) + h.LambdaW2*2*diff) / scale
			d[t][k] += g
			d[t-1][k] -= g
		}
		l.W1 += h.LambdaW1 * l1 / scale
		l.W2 += h.LambdaW2 * l2 / scale
	}
	return l, d
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
