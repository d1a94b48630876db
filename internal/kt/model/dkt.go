package model

import (
	"math/rand/v2"

	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
)

// DKT is the baseline network: interaction embedding, LSTM and a linear
// output layer. Its outputs are logits.
type DKT struct {
	h Hyperparameters

	Interaction *nn.Embedding
	LSTM        *nn.LSTM
	Out         *nn.Linear
}

func NewDKT(h Hyperparameters, rng *rand.Rand) (*DKT, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	Q, E, H := h.NumQuestions, h.EmbSize, h.HiddenSize
	return &DKT{
		h:           h,
		Interaction: nn.NewEmbedding(2*Q, E, rng),
		LSTM:        nn.NewLSTM(E, H, rng),
		Out:         nn.NewLinear(H, Q, rng),
	}, nil
}

func (m *DKT) Variant() Variant { return VariantBaseline }
func (m *DKT) Hyper() Hyperparameters { return m.h }

func (m *DKT) Params() []nn.NamedTensor {
	return []nn.NamedTensor{
		{Name: "interaction_emb.weight", Tensor: m.Interaction.Weight},
		{Name: "lstm_layer.weight_ih_l0", Tensor: m.LSTM.WeightIH},
		{Name: "lstm_layer.weight_hh_l0", Tensor: m.LSTM.WeightHH},
		{Name: "lstm_layer.bias_ih_l0", Tensor: m.LSTM.BiasIH},
		{Name: "lstm_layer.bias_hh_l0", Tensor: m.LSTM.BiasHH},
		{Name: "out_layer.weight", Tensor: m.Out.Weight},
		{Name: "out_layer.bias", Tensor: m.Out.Bias},
	}
}

func (m *DKT) view(ts []*nn.Tensor) *DKT {
	return &DKT{
		h:           m.h,
		Interaction: &nn.Embedding{Weight: ts[0]},
		LSTM:        &nn.LSTM{WeightIH: ts[1], WeightHH: ts[2], BiasIH: ts[3], BiasHH: ts[4]},
		Out:         &nn.Linear{Weight: ts[5], Bias: ts[6]},
	}
}

func (m *DKT) embed(in Input) ([]int, [][]float64, error) {
	idx, err := encode(in, m.h.NumQuestions)
	if err != nil {
		return nil, nil, err
	}
	xs := make([][]float64, len(idx))
	for t, x := range idx {
		emb, err := m.Interaction.Lookup(x)
		if err != nil {
			return nil, nil, err
		}
		xs[t] = emb
	}
	return idx, xs, nil
}

// Predict returns raw logits for the final step.
func (m *DKT) Predict(in Input) ([]float64, error) {
	_, xs, err := m.embed(in)
	if err != nil {
		return nil, err
	}
	hs, _ := m.LSTM.Forward(xs, false)
	return projectLast(m.Out, hs), nil
}

func (m *DKT) Forward(in Input, rng *rand.Rand) (*Pass, error) {
	idx, xs, err := m.embed(in)
	if err != nil {
		return nil, err
	}
	hs, tr := m.LSTM.Forward(xs, true)
	p := &Pass{Out: make([][]float64, len(hs)), index: idx, lstm: tr}
	if rng != nil {
		p.drop = make([][]float64, len(hs))
	}
	Q := m.h.NumQuestions
	for t, h := range hs {
		z := make([]float64, Q)
		m.Out.Forward(h, z)
		if rng != nil {
			mask := nn.DropoutMask(Q, DropoutP, rng)
			for k := range z {
				z[k] *= mask[k]
			}
			p.drop[t] = mask
		}
		p.Out[t] = z
	}
	return p, nil
}

func (m *DKT) Backward(p *Pass, dOut [][]float64, grads []*nn.Tensor) {
	g := m.view(grads)
	dz := make([]float64, m.h.NumQuestions)
	dhs := make([][]float64, len(p.Out))
	for t, dy := range dOut {
		if dy == nil {
			continue
		}
		for k := range dz {
			d := dy[k]
			if p.drop != nil {
				d *= p.drop[t][k]
			}
			dz[k] = d
		}
		dh := make([]float64, m.h.HiddenSize)
		m.Out.Backward(p.lstm.H[t], dz, dh, g.Out)
		dhs[t] = dh
	}
	dxs := m.LSTM.Backward(p.lstm, dhs, g.LSTM)
	for t, dx := range dxs {
		m.Interaction.Backward(p.index[t], dx, g.Interaction)
	}
}
