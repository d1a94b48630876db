package train

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

func TestBestTrackerPersistsOnStrictImprovement(t *testing.T) {
	var b BestTracker
	var saved []int
	for i, auc := range []float64{0.5, 0.6, 0.55, 0.7} {
		if b.Observe(i+1, auc) {
			saved = append(saved, i+1)
		}
	}
	assert.Equal(t, []int{1, 2, 4}, saved)
	best, epoch := b.Best()
	assert.Equal(t, 0.7, best)
	assert.Equal(t, 4, epoch)

	assert.False(t, b.Observe(5, 0.7), "a tie is not an improvement")

	var fresh BestTracker
	assert.False(t, fresh.Observe(1, 0))
}

func shiftedFixture() dataset.Shifted {
	return dataset.Shifted{
		LearnerID: "fx",
		Q:         []int{0, 2, 1, 3, 0},
		R:         []int{1, 0, 1, 1, 0},
		C:         []float64{0.2, 0.4, 0.6, 0.8, 0},
		D:         []float64{0.9, 0.7, 0.5, 0.3, 0},
		QShift:    []int{2, 1, 3, 0, model.PadQuestion},
		RShift:    []int{0, 1, 1, 0, 0},
		Mask:      []bool{true, true, true, true, false},
	}
}

func totalLoss(v model.Variant, h model.Hyperparameters, s dataset.Shifted, out [][]float64, steps, pairs int) float64 {
	l, _ := objective(v, h, s, out, steps, pairs)
	return l.Total()
}

func TestObjectiveGradientMatchesFiniteDifferences(t *testing.T) {
	h := model.Hyperparameters{NumQuestions: 4, EmbSize: 2, HiddenSize: 2, LambdaR: 0.1, LambdaW1: 0.03, LambdaW2: 3}
	s := shiftedFixture()
	steps, pairs := 9, 6 // pretend the batch holds other sequences too

	for _, v := range []model.Variant{model.VariantEnhanced, model.VariantBaseline} {
		t.Run(string(v), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(3, 4))
			out := make([][]float64, s.Span())
			for i := range out {
				out[i] = make([]float64, h.NumQuestions)
				for k := range out[i] {
					out[i][k] = 0.1 + 0.8*rng.Float64()
					if v == model.VariantBaseline {
						out[i][k] = rng.NormFloat64()
					}
				}
			}
			_, d := objective(v, h, s, out, steps, pairs)
			const eps = 1e-6
			for i := range out {
				for k := range out[i] {
					orig := out[i][k]
					out[i][k] = orig + eps
					up := totalLoss(v, h, s, out, steps, pairs)
					out[i][k] = orig - eps
					down := totalLoss(v, h, s, out, steps, pairs)
					out[i][k] = orig
					num := (up - down) / (2 * eps)
					assert.InDelta(t, num, d[i][k], 1e-6, "out[%d][%d]", i, k)
				}
			}
		})
	}
}

func TestObjectiveTerms(t *testing.T) {
	h := model.Hyperparameters{NumQuestions: 2, EmbSize: 1, HiddenSize: 1, LambdaR: 0.5, LambdaW1: 1, LambdaW2: 1}
	s := dataset.Shifted{
		Q:      []int{0, 1},
		R:      []int{1, 0},
		QShift: []int{1, 0},
		RShift: []int{0, 1},
		Mask:   []bool{true, true},
	}
	out := [][]float64{{0.5, 0.5}, {0.75, 0.25}}
	steps, pairs := batchCounts([]dataset.Shifted{s})
	require.Equal(t, 2, steps)
	require.Equal(t, 1, pairs)

	l, _ := objective(model.VariantEnhanced, h, s, out, steps, pairs)
	wantNext := (-math.Log(0.5) - math.Log(0.75)) / 2
	wantCurr := 0.5 * (-math.Log(0.5) - math.Log(0.75)) / 2
	assert.InDelta(t, wantNext, l.Next, 1e-12)
	assert.InDelta(t, wantCurr, l.Curr, 1e-12)
	assert.InDelta(t, 0.5/2, l.W1, 1e-12)
	assert.InDelta(t, 0.125/2, l.W2, 1e-12)

	assert.InDelta(t, 100, bce(0, 1), 1e-12, "log is clamped at -100")
}

func TestObjectiveWithoutPairsSkipsSmoothness(t *testing.T) {
	h := model.Hyperparameters{NumQuestions: 2, EmbSize: 1, HiddenSize: 1, LambdaW1: 1, LambdaW2: 1}
	s := dataset.Shifted{Q: []int{0}, R: []int{1}, QShift: []int{1}, RShift: []int{1}, Mask: []bool{true}}
	steps, pairs := batchCounts([]dataset.Shifted{s})
	require.Zero(t, pairs)
	l, _ := objective(model.VariantEnhanced, h, s, [][]float64{{0.3, 0.6}}, steps, pairs)
	assert.Zero(t, l.W1)
	assert.Zero(t, l.W2)
	assert.False(t, math.IsNaN(l.Total()))
}

// synthetic builds learners whose answers are correct exactly on even
// questions.
func synthetic(n, length, q int, seed uint64) []dataset.Shifted {
	rng := rand.New(rand.NewPCG(seed, 7))
	seqs := make([]dataset.Sequence, n)
	for i := range seqs {
		s := dataset.Sequence{
			LearnerID:  string(rune('a' + i%26)),
			Questions:  make([]int, length),
			Correct:    make([]int, length),
			Confidence: make([]float64, length),
			Difficulty: make([]float64, length),
			Length:     length,
		}
		for t := range s.Questions {
			k := rng.IntN(q)
			s.Questions[t] = k
			if k%2 == 0 {
				s.Correct[t] = 1
				s.Confidence[t] = 0.8
			}
			s.Difficulty[t] = float64(k) / float64(q)
		}
		seqs[i] = s
	}
	return dataset.ShiftAll(seqs)
}

func smallConfig(v model.Variant) Config {
	cfg := DefaultConfig(v)
	cfg.Hyper.NumQuestions = 4
	cfg.Hyper.EmbSize = 6
	cfg.Hyper.HiddenSize = 8
	cfg.Epochs = 12
	cfg.BatchSize = 8
	cfg.LR = 0.02
	cfg.Workers = 3
	cfg.Seed = 11
	cfg.Hyper.LambdaW2 = 0.1
	return cfg
}

type recordingPersister struct{ epochs []int }

func (p *recordingPersister) Persist(_ context.Context, _ model.Model, r EpochReport) error {
	p.epochs = append(p.epochs, r.Epoch)
	return nil
}

func TestTrainerLearnsAndPersistsOnImprovement(t *testing.T) {
	for _, v := range []model.Variant{model.VariantEnhanced, model.VariantBaseline} {
		t.Run(string(v), func(t *testing.T) {
			cfg := smallConfig(v)
			m, err := model.New(v, cfg.Hyper, rand.New(rand.NewPCG(cfg.Seed, 1)))
			require.NoError(t, err)

			p := &recordingPersister{}
			tr, err := New(cfg, nil, p)
			require.NoError(t, err)

			reports, err := tr.Run(context.Background(), m, synthetic(24, 10, 4, 1), synthetic(8, 10, 4, 2))
			require.NoError(t, err)
			require.Len(t, reports, cfg.Epochs)

			assert.Less(t, reports[len(reports)-1].LossMean, reports[0].LossMean)

			best := 0.0
			var want []int
			for _, r := range reports {
				require.True(t, r.AUCDefined)
				if r.AUC > best {
					best = r.AUC
					want = append(want, r.Epoch)
				}
				assert.Equal(t, contains(want, r.Epoch), r.Persisted, "epoch %d", r.Epoch)
			}
			assert.Equal(t, want, p.epochs)
			assert.Greater(t, best, 0.75)
		})
	}
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func TestTrainerIsDeterministic(t *testing.T) {
	cfg := smallConfig(model.VariantEnhanced)
	cfg.Epochs = 2
	run := func() []EpochReport {
		m, err := model.New(cfg.Variant, cfg.Hyper, rand.New(rand.NewPCG(5, 5)))
		require.NoError(t, err)
		tr, err := New(cfg, nil, nil)
		require.NoError(t, err)
		reps, err := tr.Run(context.Background(), m, synthetic(16, 6, 4, 3), synthetic(6, 6, 4, 4))
		require.NoError(t, err)
		for i := range reps {
			reps[i].Duration = 0
		}
		return reps
	}
	assert.Equal(t, run(), run())
}

func TestTrainerSingleClassEvalNeverPersists(t *testing.T) {
	cfg := smallConfig(model.VariantBaseline)
	cfg.Epochs = 2
	m, err := model.New(cfg.Variant, cfg.Hyper, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	eval := synthetic(4, 6, 4, 9)
	for i := range eval {
		for k := range eval[i].RShift {
			eval[i].RShift[k] = 1
		}
	}
	p := &recordingPersister{}
	tr, err := New(cfg, nil, p)
	require.NoError(t, err)
	reports, err := tr.Run(context.Background(), m, synthetic(8, 6, 4, 1), eval)
	require.NoError(t, err)
	for _, r := range reports {
		assert.False(t, r.AUCDefined)
		assert.False(t, r.Persisted)
	}
	assert.Empty(t, p.epochs)
}

func TestTrainerRejectsVariantMismatchAndCancellation(t *testing.T) {
	cfg := smallConfig(model.VariantEnhanced)
	tr, err := New(cfg, nil, nil)
	require.NoError(t, err)

	base, err := model.New(model.VariantBaseline, cfg.Hyper, nil)
	require.NoError(t, err)
	_, err = tr.Run(context.Background(), base, synthetic(4, 4, 4, 1), nil)
	require.Error(t, err)

	plus, err := model.New(model.VariantEnhanced, cfg.Hyper, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Run(ctx, plus, synthetic(4, 4, 4, 1), nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = New(Config{Variant: "lstm"}, nil, nil)
	require.Error(t, err)
}

func TestEvaluateBaselineScoresAreProbabilities(t *testing.T) {
	cfg := smallConfig(model.VariantBaseline)
	m, err := model.New(cfg.Variant, cfg.Hyper, rand.New(rand.NewPCG(2, 2)))
	require.NoError(t, err)
	seqs := synthetic(3, 5, 4, 6)
	labels, scores, err := Evaluate(context.Background(), m, seqs, 2)
	require.NoError(t, err)
	require.Len(t, labels, 12)
	require.Len(t, scores, 12)
	for _, s := range scores {
		assert.True(t, s > 0 && s < 1, "score %v", s)
	}
}
