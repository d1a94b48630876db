// Package router loads the two checkpoints the server needs and holds the
// resulting engines for the lifetime of the process.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/engine"
	"github.com/yungbote/neurobridge-kt/internal/kt/ckpt"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/registry"
)

type Router struct {
	engines map[model.Variant]engine.Engine
}

// Deps are the collaborators a ModelSource may need. Objects is required
// for gs:// directories and Snapshots for snapshot keys.
type Deps struct {
	Objects   ckpt.Objects
	Snapshots registry.SnapshotRepo
}

// Load reads both checkpoints concurrently. Any failure aborts the whole
// load: the server never runs with one model missing.
func Load(ctx context.Context, log *logger.Logger, cfg config.ModelsConfig, deps Deps) (*Router, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", "ModelRouter")

	sources := map[model.Variant]config.ModelSource{
		model.VariantEnhanced: cfg.Enhanced,
		model.VariantBaseline: cfg.Baseline,
	}
	loaded := make(map[model.Variant]engine.Engine, len(sources))
	results := make([]engine.Engine, 2)
	variants := []model.Variant{model.VariantEnhanced, model.VariantBaseline}

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			e, err := loadOne(gctx, log, v, sources[v], deps)
			if err != nil {
				return fmt.Errorf("load %s model: %w", v, err)
			}
			results[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, v := range variants {
		loaded[v] = results[i]
	}
	return &Router{engines: loaded}, nil
}

// FromEngines builds a router around already constructed engines.
func FromEngines(engines ...engine.Engine) (*Router, error) {
	r := &Router{engines: map[model.Variant]engine.Engine{}}
	for _, e := range engines {
		v := e.Info().Variant
		if _, dup := r.engines[v]; dup {
			return nil, fmt.Errorf("duplicate engine for variant %s", v)
		}
		r.engines[v] = e
	}
	return r, nil
}

func loadOne(ctx context.Context, log *logger.Logger, v model.Variant, src config.ModelSource, deps Deps) (engine.Engine, error) {
	uri := strings.TrimSpace(src.Dir)
	if key := strings.TrimSpace(src.SnapshotKey); key != "" {
		if deps.Snapshots == nil {
			return nil, errors.New("snapshot_key set but no registry configured")
		}
		snap, err := deps.Snapshots.GetActiveByKey(dbctx.Context{Ctx: ctx}, key)
		if err != nil {
			return nil, fmt.Errorf("resolve snapshot %q: %w", key, err)
		}
		if snap == nil {
			return nil, fmt.Errorf("resolve snapshot %q: %w", key, registry.ErrSnapshotNotFound)
		}
		log.Info("resolved snapshot", "snapshot_key", key, "version", snap.Version, "uri", snap.URI)
		uri = snap.URI
	}

	st, err := ckpt.OpenStore(uri, deps.Objects)
	if err != nil {
		return nil, err
	}
	m, info, err := ckpt.Load(ctx, st, v)
	if err != nil {
		return nil, err
	}
	h := m.Hyper()
	log.Info("model loaded",
		"variant", string(v),
		"uri", info.URI,
		"num_questions", h.NumQuestions,
		"emb_size", h.EmbSize,
		"hidden_size", h.HiddenSize,
		"fingerprint", info.Fingerprint,
	)
	return engine.NewLocal(m, info.Fingerprint, info.URI), nil
}

func (r *Router) Engine(v model.Variant) (engine.Engine, bool) {
	e, ok := r.engines[v]
	return e, ok
}

// ListModels returns the loaded engines, enhanced first.
func (r *Router) ListModels() []engine.Info {
	out := make([]engine.Info, 0, len(r.engines))
	for _, v := range []model.Variant{model.VariantEnhanced, model.VariantBaseline} {
		if e, ok := r.engines[v]; ok {
			out = append(out, e.Info())
		}
	}
	return out
}
