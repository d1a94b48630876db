// Package pipeline runs a full training job: load interactions, build
// sequences, train, write checkpoints and record snapshots.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-kt/internal/kt/ckpt"
	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/kt/train"
	"github.com/yungbote/neurobridge-kt/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/registry"
)

const DefaultTrainRatio = 0.8

// ErrInvalidRequest marks requests that cannot succeed on retry.
var ErrInvalidRequest = errors.New("invalid training request")

// Source names where interactions come from. Exactly one of CSVPath and
// PostgresDSN is set.
type Source struct {
	CSVPath     string `json:"csv_path,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`
	Query       string `json:"query,omitempty"`
}

type Request struct {
	Source     Source          `json:"source"`
	Dataset    dataset.Options `json:"dataset"`
	TrainRatio float64         `json:"train_ratio"`
	Train      train.Config    `json:"train"`
	// OutputURI is the checkpoint directory, local or gs://.
	OutputURI string `json:"output_uri"`
	// Activate marks each recorded snapshot as the serving one.
	Activate bool `json:"activate"`
}

type Result struct {
	Stats       dataset.Stats       `json:"stats"`
	Reports     []train.EpochReport `json:"reports"`
	BestEpoch   int                 `json:"best_epoch"`
	BestAUC     float64             `json:"best_auc"`
	Fingerprint string              `json:"fingerprint"`
	OutputURI   string              `json:"output_uri"`
}

type Runner struct {
	log       *logger.Logger
	objects   ckpt.Objects
	snapshots registry.SnapshotRepo
}

// NewRunner builds a Runner. objects is only needed for gs:// outputs and
// snapshots may be nil to skip the registry.
func NewRunner(baseLog *logger.Logger, objects ckpt.Objects, snapshots registry.SnapshotRepo) *Runner {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Runner{log: baseLog.With("service", "TrainPipeline"), objects: objects, snapshots: snapshots}
}

// LoadDataset reads rows from src and builds padded learner sequences.
func (r *Runner) LoadDataset(ctx context.Context, src Source, opts dataset.Options) (*dataset.Dataset, error) {
	var (
		rows    []dataset.Row
		skipped int
		err     error
	)
	switch {
	case src.CSVPath != "" && src.PostgresDSN != "":
		return nil, fmt.Errorf("%w: choose either a CSV file or a Postgres DSN", ErrInvalidRequest)
	case src.CSVPath != "":
		f, ferr := os.Open(src.CSVPath)
		if ferr != nil {
			return nil, ferr
		}
		defer f.Close()
		rows, skipped, err = dataset.ReadCSV(f)
	case src.PostgresDSN != "":
		pool, perr := dataset.OpenPool(ctx, src.PostgresDSN)
		if perr != nil {
			return nil, perr
		}
		defer pool.Close()
		rows, err = dataset.LoadPostgres(ctx, pool, src.Query)
	default:
		return nil, fmt.Errorf("%w: no interaction source configured", ErrInvalidRequest)
	}
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Build(rows, opts, r.log)
	if err != nil {
		return nil, err
	}
	ds.Stats.Skipped = skipped
	return ds, nil
}

func (r *Runner) Train(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.OutputURI) == "" {
		return nil, fmt.Errorf("%w: output uri is required", ErrInvalidRequest)
	}
	if req.TrainRatio <= 0 || req.TrainRatio >= 1 {
		req.TrainRatio = DefaultTrainRatio
	}
	ds, err := r.LoadDataset(ctx, req.Source, req.Dataset)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	cfg := req.Train
	cfg.Hyper.NumQuestions = ds.NumQuestions
	trainSeqs, evalSeqs := dataset.Split(ds.Sequences, req.TrainRatio, rand.New(rand.NewPCG(cfg.Seed, 2)))
	log := r.log.With("model_key", cfg.ModelKey, "variant", cfg.Variant)
	log.Info("dataset ready",
		"learners", ds.Stats.Learners,
		"num_questions", ds.NumQuestions,
		"train", len(trainSeqs),
		"eval", len(evalSeqs),
		"truncated", ds.Stats.Truncated,
		"clamped", ds.Stats.Clamped,
	)

	m, err := model.New(cfg.Variant, cfg.Hyper, rand.New(rand.NewPCG(cfg.Seed, 3)))
	if err != nil {
		return nil, err
	}
	store, err := ckpt.OpenStore(req.OutputURI, r.objects)
	if err != nil {
		return nil, err
	}
	if ds.SkillIndex != nil {
		if err := writeSkillIndex(ctx, store, ds.SkillIndex); err != nil {
			return nil, err
		}
	}

	res := &Result{Stats: ds.Stats, OutputURI: store.URI()}
	persist := train.PersisterFunc(func(ctx context.Context, m model.Model, rep train.EpochReport) error {
		meta := map[string]string{
			"epoch": strconv.Itoa(rep.Epoch),
			"auc":   strconv.FormatFloat(rep.AUC, 'f', 6, 64),
		}
		info, err := ckpt.Save(ctx, store, m, meta)
		if err != nil {
			return err
		}
		res.BestEpoch, res.BestAUC, res.Fingerprint = rep.Epoch, rep.AUC, info.Fingerprint
		log.Info("checkpoint saved", "epoch", rep.Epoch, "auc", rep.AUC, "uri", info.URI)
		return r.record(ctx, req, m, rep, info)
	})

	tr, err := train.New(cfg, r.log, persist)
	if err != nil {
		return nil, err
	}
	res.Reports, err = tr.Run(ctx, m, dataset.ShiftAll(trainSeqs), dataset.ShiftAll(evalSeqs))
	if err != nil {
		return res, err
	}
	if res.BestEpoch == 0 {
		log.Warn("no epoch produced a checkpoint", "epochs", len(res.Reports))
	}
	return res, nil
}

// record copies the checkpoint under snapshots/ and registers it.
func (r *Runner) record(ctx context.Context, req Request, m model.Model, rep train.EpochReport, saved ckpt.Info) error {
	if r.snapshots == nil {
		return nil
	}
	uri := fmt.Sprintf("%s/snapshots/epoch-%03d", strings.TrimRight(req.OutputURI, "/"), rep.Epoch)
	st, err := ckpt.OpenStore(uri, r.objects)
	if err != nil {
		return err
	}
	info, err := ckpt.Save(ctx, st, m, saved.Meta)
	if err != nil {
		return err
	}
	params, err := json.Marshal(struct {
		Model ckpt.ModelConfig `json:"model"`
		Train train.Config     `json:"train"`
	}{info.Config, req.Train})
	if err != nil {
		return err
	}
	metrics, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	row := &registry.ModelSnapshot{
		ModelKey:    req.Train.ModelKey,
		URI:         info.URI,
		Fingerprint: info.Fingerprint,
		Epoch:       rep.Epoch,
		AUC:         rep.AUC,
		LossMean:    rep.LossMean,
		ParamsJSON:  datatypes.JSON(params),
		MetricsJSON: datatypes.JSON(metrics),
	}
	if row.ModelKey == "" {
		row.ModelKey = string(m.Variant())
	}
	return r.snapshots.Record(dbctx.Context{Ctx: ctx}, row, req.Activate)
}

const SkillIndexFile = "skill_index.json"

func writeSkillIndex(ctx context.Context, st ckpt.Store, idx map[int]int) error {
	out := make(map[string]int, len(idx))
	for raw, q := range idx {
		out[strconv.Itoa(raw)] = q
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return st.Write(ctx, SkillIndexFile, b)
}
