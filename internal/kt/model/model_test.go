package model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
)

func testHyper(q int) Hyperparameters {
	return Hyperparameters{NumQuestions: q, EmbSize: 4, HiddenSize: 5, LambdaR: 0.1, LambdaW1: 0.03, LambdaW2: 3}
}

func TestCombinedIndex(t *testing.T) {
	cases := []struct {
		q, r, Q int
		want    int
		wantErr bool
	}{
		{q: 0, r: 0, Q: 10, want: 0},
		{q: 3, r: 1, Q: 10, want: 13},
		{q: 9, r: 1, Q: 10, want: 19},
		{q: 10, r: 0, Q: 10, wantErr: true},
		{q: -1, r: 0, Q: 10, wantErr: true},
		{q: 2, r: 2, Q: 10, wantErr: true},
		{q: 2, r: -1, Q: 10, wantErr: true},
	}
	for _, tc := range cases {
		got, err := CombinedIndex(tc.q, tc.r, tc.Q)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrIndexOutOfRange, "q=%d r=%d", tc.q, tc.r)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.q+tc.Q*tc.r, got)
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("DKT+")
	require.NoError(t, err)
	assert.Equal(t, VariantEnhanced, v)
	v, err = ParseVariant("dkt")
	require.NoError(t, err)
	assert.Equal(t, VariantBaseline, v)
	_, err = ParseVariant("sakt")
	require.Error(t, err)
}

func scenarioInput() Input {
	return Input{
		Questions:  []int{1, 5, 3, 10},
		Correct:    []int{1, 0, 1, 1},
		Confidence: []float64{0.7, 0.3, 0.5, 0.8},
		Difficulty: []float64{0.2, 0.6, 0.4, 0.1},
	}
}

func TestDKTPlusScenarioProbabilities(t *testing.T) {
	m, err := NewDKTPlus(testHyper(11), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	y, err := m.Predict(scenarioInput())
	require.NoError(t, err)
	require.Len(t, y, 11)
	for i, v := range y {
		assert.Truef(t, v > 0 && v < 1, "y[%d]=%v not in (0,1)", i, v)
	}
	assert.Equal(t, 23, m.Interaction.Rows())
}

func TestDKTPlusRejectsOutOfRangeQuestion(t *testing.T) {
	m, err := NewDKTPlus(testHyper(10), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	// question 10 with Q=10 would land on the reserved row 2Q when correct.
	_, err = m.Predict(scenarioInput())
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	in := scenarioInput()
	in.Difficulty = in.Difficulty[:3]
	m11, err := NewDKTPlus(testHyper(11), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	_, err = m11.Predict(in)
	require.Error(t, err)

	_, err = m11.Predict(Input{})
	require.ErrorIs(t, err, ErrEmptySequence)
}

func TestDKTReturnsLogits(t *testing.T) {
	m, err := NewDKT(testHyper(11), rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	in := scenarioInput()
	in.Confidence, in.Difficulty = nil, nil
	logits, err := m.Predict(in)
	require.NoError(t, err)
	require.Len(t, logits, 11)

	p, err := m.Forward(in, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, p.Out[len(p.Out)-1], logits, 1e-12)
	outside := false
	for _, v := range logits {
		if v < 0 || v > 1 {
			outside = true
		}
	}
	assert.True(t, outside, "logits all inside [0,1]; output looks squashed")
}

func TestPredictMatchesForwardLastStep(t *testing.T) {
	m, err := NewDKTPlus(testHyper(11), rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, err)
	y, err := m.Predict(scenarioInput())
	require.NoError(t, err)
	p, err := m.Forward(scenarioInput(), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, p.Out[3], y, 1e-12)
}

func TestFromTensors(t *testing.T) {
	src, err := NewDKTPlus(testHyper(6), rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	ts := map[string]*nn.Tensor{}
	for _, p := range src.Params() {
		ts[p.Name] = p.Tensor.Clone()
	}

	m, err := FromTensors(VariantEnhanced, testHyper(6), ts)
	require.NoError(t, err)
	a, _ := src.Predict(Input{Questions: []int{1, 2}, Correct: []int{0, 1}, Confidence: []float64{1, 1}, Difficulty: []float64{0.5, 0.5}})
	b, _ := m.Predict(Input{Questions: []int{1, 2}, Correct: []int{0, 1}, Confidence: []float64{1, 1}, Difficulty: []float64{0.5, 0.5}})
	assert.Equal(t, a, b)

	_, err = FromTensors(VariantEnhanced, testHyper(7), ts)
	require.ErrorIs(t, err, ErrShapeMismatch)

	delete(ts, "conf_proj.bias")
	_, err = FromTensors(VariantEnhanced, testHyper(6), ts)
	require.ErrorIs(t, err, ErrMissingParam)

	ts["conf_proj.bias"] = src.ConfProj.Bias.Clone()
	ts["extra.weight"] = nn.NewTensor(1)
	_, err = FromTensors(VariantEnhanced, testHyper(6), ts)
	require.Error(t, err)
}

// readout is Σ_t Σ_q w[t][q]·Out[t][q] for a pass with a fixed dropout seed.
func readout(t *testing.T, m Trainable, in Input, w [][]float64, seed uint64) (*Pass, float64) {
	t.Helper()
	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	p, err := m.Forward(in, rng)
	require.NoError(t, err)
	var s float64
	for step, row := range p.Out {
		for q, v := range row {
			s += w[step][q] * v
		}
	}
	return p, s
}

func gradCheck(t *testing.T, m Trainable, in Input, seed uint64) {
	t.Helper()
	rng := rand.New(rand.NewPCG(42, 43))
	Q := m.Hyper().NumQuestions
	w := make([][]float64, in.Len())
	for i := range w {
		w[i] = make([]float64, Q)
		for q := range w[i] {
			w[i][q] = rng.NormFloat64()
		}
	}
	p, _ := readout(t, m, in, w, seed)
	grads := nn.ZerosLike(m.Params())
	m.Backward(p, w, grads)

	const eps = 1e-6
	for pi, np := range m.Params() {
		for i := range np.Tensor.Data {
			orig := np.Tensor.Data[i]
			np.Tensor.Data[i] = orig + eps
			_, up := readout(t, m, in, w, seed)
			np.Tensor.Data[i] = orig - eps
			_, down := readout(t, m, in, w, seed)
			np.Tensor.Data[i] = orig
			num := (up - down) / (2 * eps)
			require.InDeltaf(t, num, grads[pi].Data[i], 1e-6+1e-4*math.Abs(num), "%s[%d]", np.Name, i)
		}
	}
}

func TestDKTPlusGradients(t *testing.T) {
	h := Hyperparameters{NumQuestions: 3, EmbSize: 2, HiddenSize: 3}
	m, err := NewDKTPlus(h, rand.New(rand.NewPCG(11, 12)))
	require.NoError(t, err)
	in := Input{Questions: []int{0, 2, 1}, Correct: []int{1, 0, 1}, Confidence: []float64{0.4, 0.9, 0.1}, Difficulty: []float64{0.3, 0.2, 0.8}}
	gradCheck(t, m, in, 0)
	gradCheck(t, m, in, 77)
}

func TestDKTGradients(t *testing.T) {
	h := Hyperparameters{NumQuestions: 3, EmbSize: 2, HiddenSize: 3}
	m, err := NewDKT(h, rand.New(rand.NewPCG(13, 14)))
	require.NoError(t, err)
	in := Input{Questions: []int{2, 2, 0, 1}, Correct: []int{0, 1, 1, 0}}
	gradCheck(t, m, in, 0)
	gradCheck(t, m, in, 5)
}

func TestReservedRowReceivesNoGradient(t *testing.T) {
	h := Hyperparameters{NumQuestions: 3, EmbSize: 2, HiddenSize: 3}
	m, err := NewDKTPlus(h, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	in := Input{Questions: []int{0, 1, 2}, Correct: []int{1, 1, 1}, Confidence: []float64{1, 1, 1}, Difficulty: []float64{1, 1, 1}}
	p, err := m.Forward(in, nil)
	require.NoError(t, err)
	dOut := make([][]float64, len(p.Out))
	for i := range dOut {
		dOut[i] = []float64{1, 1, 1}
	}
	grads := nn.ZerosLike(m.Params())
	m.Backward(p, dOut, grads)
	for _, v := range grads[0].Row(2 * h.NumQuestions) {
		assert.Zero(t, v)
	}
}

func TestNewRejectsBadHyperparameters(t *testing.T) {
	_, err := New(VariantEnhanced, Hyperparameters{NumQuestions: 0, EmbSize: 1, HiddenSize: 1}, nil)
	require.Error(t, err)
	_, err = New(Variant("other"), testHyper(3), nil)
	require.Error(t, err)
}
