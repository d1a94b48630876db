package router

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/kt/ckpt"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-kt/internal/registry"
)

func saveModel(t *testing.T, dir string, v model.Variant, q int) {
	t.Helper()
	h := model.Hyperparameters{NumQuestions: q, EmbSize: 4, HiddenSize: 3, LambdaR: 0.01, LambdaW1: 0.003, LambdaW2: 3}
	m, err := model.New(v, h, rand.New(rand.NewPCG(7, uint64(q))))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	_, err = ckpt.Save(context.Background(), ckpt.DirStore{Dir: dir}, m, nil)
	require.NoError(t, err)
}

func TestLoadFromDirs(t *testing.T) {
	root := t.TempDir()
	enhDir := filepath.Join(root, "dkt+")
	baseDir := filepath.Join(root, "dkt")
	saveModel(t, enhDir, model.VariantEnhanced, 12)
	saveModel(t, baseDir, model.VariantBaseline, 9)

	r, err := Load(context.Background(), nil, config.ModelsConfig{
		Enhanced: config.ModelSource{Dir: enhDir},
		Baseline: config.ModelSource{Dir: baseDir},
	}, Deps{})
	require.NoError(t, err)

	infos := r.ListModels()
	require.Len(t, infos, 2)
	assert.Equal(t, model.VariantEnhanced, infos[0].Variant)
	assert.Equal(t, 12, infos[0].NumQuestions)
	assert.Equal(t, model.VariantBaseline, infos[1].Variant)
	assert.Equal(t, 9, infos[1].NumQuestions)
	assert.NotEmpty(t, infos[0].Fingerprint)
}

func TestLoadFailsWhenEitherModelIsMissing(t *testing.T) {
	root := t.TempDir()
	enhDir := filepath.Join(root, "dkt+")
	saveModel(t, enhDir, model.VariantEnhanced, 5)

	_, err := Load(context.Background(), nil, config.ModelsConfig{
		Enhanced: config.ModelSource{Dir: enhDir},
		Baseline: config.ModelSource{Dir: filepath.Join(root, "missing")},
	}, Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ckpt.ErrNotFound)
}

func TestLoadRejectsWrongVariant(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dkt")
	saveModel(t, dir, model.VariantBaseline, 5)

	_, err := Load(context.Background(), nil, config.ModelsConfig{
		Enhanced: config.ModelSource{Dir: dir},
		Baseline: config.ModelSource{Dir: dir},
	}, Deps{})
	require.Error(t, err)
}

func TestLoadFromSnapshotKey(t *testing.T) {
	root := t.TempDir()
	enhDir := filepath.Join(root, "dkt+")
	baseDir := filepath.Join(root, "dkt")
	saveModel(t, enhDir, model.VariantEnhanced, 6)
	saveModel(t, baseDir, model.VariantBaseline, 6)

	db, err := registry.Open("sqlite", "file:router_snapshots?mode=memory&cache=shared")
	require.NoError(t, err)
	repo := registry.NewSnapshotRepo(db, nil)
	dbc := dbctx.Context{Ctx: context.Background()}
	require.NoError(t, repo.Record(dbc, &registry.ModelSnapshot{ModelKey: "enh", URI: enhDir}, true))

	r, err := Load(context.Background(), nil, config.ModelsConfig{
		Enhanced: config.ModelSource{SnapshotKey: "enh"},
		Baseline: config.ModelSource{Dir: baseDir},
	}, Deps{Snapshots: repo})
	require.NoError(t, err)
	e, ok := r.Engine(model.VariantEnhanced)
	require.True(t, ok)
	assert.Equal(t, enhDir, e.Info().Source)

	_, err = Load(context.Background(), nil, config.ModelsConfig{
		Enhanced: config.ModelSource{SnapshotKey: "nope"},
		Baseline: config.ModelSource{Dir: baseDir},
	}, Deps{Snapshots: repo})
	assert.ErrorIs(t, err, registry.ErrSnapshotNotFound)
}
