package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/evalx"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/platform/metrics"
)

// EpochReport summarises one epoch. AUC is only meaningful when
// AUCDefined is true.
type EpochReport struct {
	Epoch      int           `json:"epoch"`
	LossMean   float64       `json:"loss_mean"`
	AUC        float64       `json:"auc"`
	AUCDefined bool          `json:"auc_defined"`
	Persisted  bool          `json:"persisted"`
	Duration   time.Duration `json:"duration"`
}

// Persister stores a snapshot of m after an improving epoch.
type Persister interface {
	Persist(ctx context.Context, m model.Model, r EpochReport) error
}

type PersisterFunc func(ctx context.Context, m model.Model, r EpochReport) error

func (f PersisterFunc) Persist(ctx context.Context, m model.Model, r EpochReport) error {
	return f(ctx, m, r)
}

type Trainer struct {
	cfg     Config
	log     *logger.Logger
	persist Persister
}

func New(cfg Config, log *logger.Logger, p Persister) (*Trainer, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Trainer{cfg: cfg, log: log.With("model_key", cfg.ModelKey), persist: p}, nil
}

func (tr *Trainer) Config() Config { return tr.cfg }

// Run trains m for the configured number of epochs. After every epoch it
// evaluates AUC on eval and persists m when that AUC beats every earlier
// epoch.
func (tr *Trainer) Run(ctx context.Context, m model.Trainable, train, eval []dataset.Shifted) ([]EpochReport, error) {
	if m.Variant() != tr.cfg.Variant {
		return nil, fmt.Errorf("trainer configured for %s but model is %s", tr.cfg.Variant, m.Variant())
	}
	train = usable(train)
	eval = usable(eval)
	if len(train) == 0 {
		return nil, errors.New("no training sequence has a next-step target")
	}

	named := m.Params()
	params := make([]*nn.Tensor, len(named))
	for i, p := range named {
		params[i] = p.Tensor
	}
	opt := nn.NewAdam(tr.cfg.LR)
	opt.Clip = tr.cfg.GradClip

	workers := min(tr.cfg.Workers, tr.cfg.BatchSize)
	bufs := make([][]*nn.Tensor, workers)
	for w := range bufs {
		bufs[w] = nn.ZerosLike(named)
	}
	total := nn.ZerosLike(named)

	shuffle := rand.New(rand.NewPCG(tr.cfg.Seed, 0x9e3779b97f4a7c15))
	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	var best BestTracker
	reports := make([]EpochReport, 0, tr.cfg.Epochs)
	for epoch := 1; epoch <= tr.cfg.Epochs; epoch++ {
		start := time.Now()
		shuffle.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		batches := 0
		for b := 0; b < len(order); b += tr.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			idx := order[b:min(b+tr.cfg.BatchSize, len(order))]
			batch := make([]dataset.Shifted, len(idx))
			for i, k := range idx {
				batch[i] = train[k]
			}
			loss, err := tr.gradients(ctx, m, batch, bufs, total, epoch, batches)
			if err != nil {
				return reports, fmt.Errorf("epoch %d batch %d: %w", epoch, batches, err)
			}
			if err := opt.Step(params, total); err != nil {
				return reports, err
			}
			lossSum += loss.Total()
			batches++
		}

		rep := EpochReport{Epoch: epoch, LossMean: lossSum / float64(batches)}
		labels, scores, err := Evaluate(ctx, m, eval, workers)
		if err != nil {
			return reports, fmt.Errorf("epoch %d eval: %w", epoch, err)
		}
		auc, err := evalx.AUC(labels, scores)
		switch {
		case errors.Is(err, evalx.ErrSingleClass):
			tr.log.Warn("epoch AUC undefined", "epoch", epoch, "eval_steps", len(labels), "error", err.Error())
		case err != nil:
			return reports, fmt.Errorf("epoch %d auc: %w", epoch, err)
		default:
			rep.AUC, rep.AUCDefined = auc, true
			metrics.TrainEpochAUC.WithLabelValues(tr.cfg.ModelKey).Set(auc)
		}
		metrics.TrainEpochLoss.WithLabelValues(tr.cfg.ModelKey).Set(rep.LossMean)

		if rep.AUCDefined && best.Observe(epoch, rep.AUC) {
			rep.Persisted = true
			if tr.persist != nil {
				if err := tr.persist.Persist(ctx, m, rep); err != nil {
					return reports, fmt.Errorf("epoch %d persist: %w", epoch, err)
				}
			}
			metrics.SnapshotsPersistedTotal.WithLabelValues(tr.cfg.ModelKey).Inc()
		}
		rep.Duration = time.Since(start)
		reports = append(reports, rep)

		tr.log.Info("epoch done",
			"epoch", epoch,
			"loss_mean", rep.LossMean,
			"auc", rep.AUC,
			"auc_defined", rep.AUCDefined,
			"persisted", rep.Persisted,
			"duration_ms", rep.Duration.Milliseconds(),
		)
	}
	return reports, nil
}

// gradients sums the batch gradient into total. Sequence i of the batch is
// handled by worker i%len(bufs) and worker buffers are reduced in worker
// order, so the sum does not depend on goroutine scheduling.
func (tr *Trainer) gradients(ctx context.Context, m model.Trainable, batch []dataset.Shifted, bufs [][]*nn.Tensor, total []*nn.Tensor, epoch, step int) (Loss, error) {
	steps, pairs := batchCounts(batch)
	h := m.Hyper()
	losses := make([]Loss, len(bufs))

	g, gctx := errgroup.WithContext(ctx)
	for w := range bufs {
		g.Go(func() error {
			for _, t := range bufs[w] {
				t.Zero()
			}
			for i := w; i < len(batch); i += len(bufs) {
				if err := gctx.Err(); err != nil {
					return err
				}
				s := batch[i]
				rng := rand.New(rand.NewPCG(tr.cfg.Seed+uint64(epoch), uint64(step)<<20|uint64(i)))
				pass, err := m.Forward(s.Input(), rng)
				if err != nil {
					return fmt.Errorf("learner %s: %w", s.LearnerID, err)
				}
				l, dOut := objective(tr.cfg.Variant, h, s, pass.Out, steps, pairs)
				m.Backward(pass, dOut, bufs[w])
				losses[w].add(l)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Loss{}, err
	}

	var loss Loss
	for k := range total {
		total[k].Zero()
	}
	for w, buf := range bufs {
		for k, t := range buf {
			total[k].AddScaled(t, 1)
		}
		loss.add(losses[w])
	}
	return loss, nil
}

// Evaluate runs m without dropout over seqs and returns the next-step
// correctness labels and predicted probabilities for every masked step.
func Evaluate(ctx context.Context, m model.Trainable, seqs []dataset.Shifted, workers int) (labels, scores []float64, err error) {
	if workers <= 0 {
		workers = 1
	}
	outs := make([][]float64, len(seqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range seqs {
		if s.Span() == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pass, err := m.Forward(s.Input(), nil)
			if err != nil {
				return fmt.Errorf("learner %s: %w", s.LearnerID, err)
			}
			sc := make([]float64, 0, len(pass.Out))
			for t, y := range pass.Out {
				if !s.Mask[t] {
					continue
				}
				p := y[s.QShift[t]]
				if m.Variant() == model.VariantBaseline {
					p = nn.Sigmoid(p)
				}
				sc = append(sc, p)
			}
			outs[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for i, s := range seqs {
		k := 0
		for t, ok := range s.Mask {
			if !ok || outs[i] == nil {
				continue
			}
			labels = append(labels, float64(s.RShift[t]))
			scores = append(scores, outs[i][k])
			k++
		}
	}
	return labels, scores, nil
}

func usable(seqs []dataset.Shifted) []dataset.Shifted {
	out := make([]dataset.Shifted, 0, len(seqs))
	for _, s := range seqs {
		if s.Span() > 0 {
			out = append(out, s)
		}
	}
	return out
}
