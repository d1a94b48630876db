package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-kt/internal/kt/ckpt"
	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/kt/train"
	"github.com/yungbote/neurobridge-kt/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-kt/internal/registry"
)

// writeCSV writes learners whose answers are correct on even skills.
func writeCSV(t *testing.T, learners, steps int) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(4, 2))
	var b strings.Builder
	b.WriteString("user_id,skill_id,correct,confidence,difficulty_combined\n")
	for u := 0; u < learners; u++ {
		for s := 0; s < steps; s++ {
			k := 10 + rng.IntN(4)
			correct := 0
			if k%2 == 0 {
				correct = 1
			}
			fmt.Fprintf(&b, "%d,%d,%d,%.2f,%.2f\n", u, k, correct, 0.5+0.3*float64(correct), float64(k-10)/4)
		}
	}
	path := filepath.Join(t.TempDir(), "interactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func request(t *testing.T, v model.Variant, csvPath string, policy dataset.Policy) Request {
	cfg := train.DefaultConfig(v)
	cfg.Hyper.EmbSize, cfg.Hyper.HiddenSize = 4, 6
	cfg.Epochs, cfg.BatchSize, cfg.LR, cfg.Workers = 3, 8, 0.02, 2
	return Request{
		Source:     Source{CSVPath: csvPath},
		Dataset:    dataset.Options{SeqLen: 12, Policy: policy},
		TrainRatio: 0.75,
		Train:      cfg,
		OutputURI:  filepath.Join(t.TempDir(), "ckpt"),
		Activate:   true,
	}
}

func TestTrainWritesLoadableCheckpointAndSnapshots(t *testing.T) {
	db, err := registry.Open("sqlite", "file:pipeline_train?mode=memory&cache=shared")
	require.NoError(t, err)
	repo := registry.NewSnapshotRepo(db, nil)

	req := request(t, model.VariantEnhanced, writeCSV(t, 16, 12), dataset.PolicyReindex)
	res, err := NewRunner(nil, nil, repo).Train(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Reports, 3)
	assert.Equal(t, 4, res.Stats.NumQuestions)
	require.NotZero(t, res.BestEpoch)

	loaded, info, err := ckpt.Load(context.Background(), ckpt.DirStore{Dir: req.OutputURI}, model.VariantEnhanced)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Hyper().NumQuestions)
	assert.Equal(t, res.Fingerprint, info.Fingerprint)
	assert.FileExists(t, filepath.Join(req.OutputURI, SkillIndexFile))

	persisted := 0
	for _, r := range res.Reports {
		if r.Persisted {
			persisted++
		}
	}
	rows, err := repo.ListByKey(dbctx.Context{Ctx: context.Background()}, "dkt+", 0)
	require.NoError(t, err)
	require.Len(t, rows, persisted)
	assert.True(t, rows[0].Active)
	assert.Equal(t, res.BestEpoch, rows[0].Epoch)
	assert.Equal(t, filepath.Join(req.OutputURI, "snapshots", fmt.Sprintf("epoch-%03d", res.BestEpoch)), rows[0].URI)

	_, _, err = ckpt.Load(context.Background(), ckpt.DirStore{Dir: rows[0].URI}, model.VariantEnhanced)
	require.NoError(t, err)
}

func TestTrainRejectsOutOfRangeSkillsByDefault(t *testing.T) {
	req := request(t, model.VariantBaseline, writeCSV(t, 4, 6), "")
	_, err := NewRunner(nil, nil, nil).Train(context.Background(), req)
	require.ErrorIs(t, err, dataset.ErrQuestionOutOfRange)
}

func TestLoadDatasetSourceValidation(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	_, err := r.LoadDataset(context.Background(), Source{}, dataset.Options{})
	require.Error(t, err)
	_, err = r.LoadDataset(context.Background(), Source{CSVPath: "a.csv", PostgresDSN: "postgres://x"}, dataset.Options{})
	require.Error(t, err)

	ds, err := r.LoadDataset(context.Background(), Source{CSVPath: writeCSV(t, 3, 5)}, dataset.Options{Policy: dataset.PolicyClamp})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Stats.Learners)
	assert.Positive(t, ds.Stats.Clamped)
}
