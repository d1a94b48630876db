package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
)

// DKTPlus embeds each (question, correctness) interaction, projects the
// scalar confidence and difficulty into the same width, and feeds the 3E
// concatenation through an LSTM and a sigmoid output layer.
//
// The interaction table has 2Q+1 rows. Row 2Q is never addressed: valid
// combined indices stop at 2Q-1 and padding never reaches the table.
type DKTPlus struct {
	h Hyperparameters

	Interaction *nn.Embedding
	ConfProj    *nn.Linear
	DiffProj    *nn.Linear
	LSTM        *nn.LSTM
	Out         *nn.Linear
}

func NewDKTPlus(h Hyperparameters, rng *rand.Rand) (*DKTPlus, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	Q, E, H := h.NumQuestions, h.EmbSize, h.HiddenSize
	return &DKTPlus{
		h:           h,
		Interaction: nn.NewEmbedding(2*Q+1, E, rng),
		ConfProj:    nn.NewLinear(1, E, rng),
		DiffProj:    nn.NewLinear(1, E, rng),
		LSTM:        nn.NewLSTM(3*E, H, rng),
		Out:         nn.NewLinear(H, Q, rng),
	}, nil
}

func (m *DKTPlus) Variant() Variant { return VariantEnhanced }
func (m *DKTPlus) Hyper() Hyperparameters { return m.h }

func (m *DKTPlus) Params() []nn.NamedTensor {
	return []nn.NamedTensor{
		{Name: "interaction_emb.weight", Tensor: m.Interaction.Weight},
		{Name: "conf_proj.weight", Tensor: m.ConfProj.Weight},
		{Name: "conf_proj.bias", Tensor: m.ConfProj.Bias},
		{Name: "diff_proj.weight", Tensor: m.DiffProj.Weight},
		{Name: "diff_proj.bias", Tensor: m.DiffProj.Bias},
		{Name: "lstm_layer.weight_ih_l0", Tensor: m.LSTM.WeightIH},
		{Name: "lstm_layer.weight_hh_l0", Tensor: m.LSTM.WeightHH},
		{Name: "lstm_layer.bias_ih_l0", Tensor: m.LSTM.BiasIH},
		{Name: "lstm_layer.bias_hh_l0", Tensor: m.LSTM.BiasHH},
		{Name: "out_layer.weight", Tensor: m.Out.Weight},
		{Name: "out_layer.bias", Tensor: m.Out.Bias},
	}
}

// view wraps tensors aligned with Params() in the model's layer types.
func (m *DKTPlus) view(ts []*nn.Tensor) *DKTPlus {
	return &DKTPlus{
		h:           m.h,
		Interaction: &nn.Embedding{Weight: ts[0]},
		ConfProj:    &nn.Linear{Weight: ts[1], Bias: ts[2]},
		DiffProj:    &nn.Linear{Weight: ts[3], Bias: ts[4]},
		LSTM:        &nn.LSTM{WeightIH: ts[5], WeightHH: ts[6], BiasIH: ts[7], BiasHH: ts[8]},
		Out:         &nn.Linear{Weight: ts[9], Bias: ts[10]},
	}
}

// fuse builds the per-step [interaction | confidence | difficulty] inputs.
func (m *DKTPlus) fuse(in Input) ([]int, [][]float64, error) {
	idx, err := encode(in, m.h.NumQuestions)
	if err != nil {
		return nil, nil, err
	}
	n := in.Len()
	if len(in.Confidence) != n || len(in.Difficulty) != n {
		return nil, nil, fmt.Errorf("confidence/difficulty have %d/%d values, want %d", len(in.Confidence), len(in.Difficulty), n)
	}
	E := m.h.EmbSize
	xs := make([][]float64, n)
	for t, x := range idx {
		emb, err := m.Interaction.Lookup(x)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d: %w", t, err)
		}
		row := make([]float64, 3*E)
		copy(row[:E], emb)
		m.ConfProj.Forward([]float64{in.Confidence[t]}, row[E:2*E])
		m.DiffProj.Forward([]float64{in.Difficulty[t]}, row[2*E:])
		xs[t] = row
	}
	return idx, xs, nil
}

func (m *DKTPlus) Predict(in Input) ([]float64, error) {
	_, xs, err := m.fuse(in)
	if err != nil {
		return nil, err
	}
	hs, _ := m.LSTM.Forward(xs, false)
	y := projectLast(m.Out, hs)
	for k, v := range y {
		y[k] = nn.Sigmoid(v)
	}
	return y, nil
}

func (m *DKTPlus) Forward(in Input, rng *rand.Rand) (*Pass, error) {
	idx, xs, err := m.fuse(in)
	if err != nil {
		return nil, err
	}
	hs, tr := m.LSTM.Forward(xs, true)
	p := &Pass{
		Out:   make([][]float64, len(hs)),
		index: idx,
		lstm:  tr,
		conf:  in.Confidence,
		diff:  in.Difficulty,
	}
	if rng != nil {
		p.drop = make([][]float64, len(hs))
	}
	Q := m.h.NumQuestions
	for t, h := range hs {
		y := make([]float64, Q)
		m.Out.Forward(h, y)
		if rng != nil {
			mask := nn.DropoutMask(Q, DropoutP, rng)
			for k := range y {
				y[k] *= mask[k]
			}
			p.drop[t] = mask
		}
		for k, v := range y {
			y[k] = nn.Sigmoid(v)
		}
		p.Out[t] = y
	}
	return p, nil
}

func (m *DKTPlus) Backward(p *Pass, dOut [][]float64, grads []*nn.Tensor) {
	g := m.view(grads)
	E, H := m.h.EmbSize, m.h.HiddenSize
	dz := make([]float64, m.h.NumQuestions)
	dhs := make([][]float64, len(p.Out))
	for t, dy := range dOut {
		if dy == nil {
			continue
		}
		y := p.Out[t]
		for k := range dz {
			d := dy[k] * y[k] * (1 - y[k])
			if p.drop != nil {
				d *= p.drop[t][k]
			}
			dz[k] = d
		}
		dh := make([]float64, H)
		m.Out.Backward(p.lstm.H[t], dz, dh, g.Out)
		dhs[t] = dh
	}
	dxs := m.LSTM.Backward(p.lstm, dhs, g.LSTM)
	for t, dx := range dxs {
		m.Interaction.Backward(p.index[t], dx[:E], g.Interaction)
		m.ConfProj.Backward([]float64{p.conf[t]}, dx[E:2*E], nil, g.ConfProj)
		m.DiffProj.Backward([]float64{p.diff[t]}, dx[2*E:], nil, g.DiffProj)
	}
}
