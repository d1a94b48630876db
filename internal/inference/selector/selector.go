// Package selector routes a prediction request to the enhanced model when
// the request carries confidence and difficulty signal, and to the baseline
// otherwise or when the enhanced run fails.
package selector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/neurobridge-kt/internal/inference/cache"
	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/engine"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
	"github.com/yungbote/neurobridge-kt/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/platform/metrics"
	"github.com/yungbote/neurobridge-kt/internal/platform/tracing"
)

const (
	LabelEnhanced = "DKT+"
	LabelFallback = "DKT (fallback)"
)

// Prediction is the answer to one request.
type Prediction struct {
	ModelUsed     string        `json:"model_used"`
	Variant       model.Variant `json:"-"`
	QuestionIDs   []int         `json:"question_ids"`
	Probabilities []float64     `json:"predicted_probabilities"`
}

// HasSignal reports whether both arrays are non-empty and each holds at
// least one nonzero value.
func HasSignal(confidence, difficulty []float64) bool {
	return anyNonZero(confidence) && anyNonZero(difficulty)
}

func anyNonZero(xs []float64) bool {
	for _, x := range xs {
		if x != 0 {
			return true
		}
	}
	return false
}

// ValidateRequest checks the request shape before any model runs.
func ValidateRequest(in model.Input) error {
	n := in.Len()
	if n == 0 {
		return apierr.BadRequest("q_ids must not be empty")
	}
	if len(in.Correct) != n {
		return apierr.BadRequest("correctness has %d values, want %d", len(in.Correct), n)
	}
	if len(in.Confidence) != n {
		return apierr.BadRequest("confidence has %d values, want %d", len(in.Confidence), n)
	}
	if len(in.Difficulty) != n {
		return apierr.BadRequest("difficulty has %d values, want %d", len(in.Difficulty), n)
	}
	return nil
}

type Selector struct {
	log          *logger.Logger
	enhanced     engine.Engine
	baseline     engine.Engine
	breaker      *gobreaker.CircuitBreaker[[]float64]
	sem          *semaphore.Weighted
	cache        cache.Cache
	fingerprints []string
}

// New wires the two engines. A nil cache disables caching.
func New(log *logger.Logger, enhanced, baseline engine.Engine, cfg config.SelectorConfig, c cache.Cache) (*Selector, error) {
	if enhanced == nil || baseline == nil {
		return nil, errors.New("selector: both engines are required")
	}
	if v := enhanced.Info().Variant; v != model.VariantEnhanced {
		return nil, fmt.Errorf("selector: enhanced engine serves %q", v)
	}
	if v := baseline.Info().Variant; v != model.VariantBaseline {
		return nil, fmt.Errorf("selector: baseline engine serves %q", v)
	}
	if log == nil {
		log = logger.Nop()
	}
	if c == nil {
		c = cache.Nop{}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = 64
	}

	s := &Selector{
		log:          log.With("service", "Selector"),
		enhanced:     enhanced,
		baseline:     baseline,
		sem:          semaphore.NewWeighted(limit),
		cache:        c,
		fingerprints: []string{enhanced.Info().Fingerprint, baseline.Info().Fingerprint},
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        "kt-enhanced",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Bad input and caller cancellation say nothing about model health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, model.ErrIndexOutOfRange) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s, nil
}

func (s *Selector) Engines() []engine.Info {
	return []engine.Info{s.enhanced.Info(), s.baseline.Info()}
}

// BreakerState exposes the enhanced breaker state for readiness reporting.
func (s *Selector) BreakerState() gobreaker.State { return s.breaker.State() }

// Predict validates in, then answers from the cache or the engines.
func (s *Selector) Predict(ctx context.Context, in model.Input) (Prediction, error) {
	if err := ValidateRequest(in); err != nil {
		return Prediction{}, err
	}

	ctx, span := tracing.Tracer("kt/selector").Start(ctx, "selector.predict")
	defer span.End()

	key := cache.Key(s.fingerprints, in)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var p Prediction
		if err := json.Unmarshal(raw, &p); err == nil {
			p.Variant = variantOf(p.ModelUsed)
			span.SetAttributes(attribute.Bool("kt.cache_hit", true), attribute.String("kt.model_used", p.ModelUsed))
			return p, nil
		}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, apierr.New(http.StatusServiceUnavailable, apierr.CodeUnavailable, err)
	}
	defer s.sem.Release(1)

	p, err := s.Select(ctx, in)
	if err != nil {
		span.RecordError(err)
		return Prediction{}, err
	}
	span.SetAttributes(attribute.Bool("kt.cache_hit", false), attribute.String("kt.model_used", p.ModelUsed))
	metrics.PredictionsTotal.WithLabelValues(string(p.Variant)).Inc()
	if cacheable(in, p) {
		if raw, err := json.Marshal(p); err == nil {
			s.cache.Set(ctx, key, raw)
		}
	}
	return p, nil
}

// Select runs the engines for an already validated request.
func (s *Selector) Select(ctx context.Context, in model.Input) (Prediction, error) {
	if HasSignal(in.Confidence, in.Difficulty) {
		res := s.runEnhanced(ctx, in)
		if res.Err == nil {
			return prediction(LabelEnhanced, res), nil
		}
		if ctx.Err() != nil {
			return Prediction{}, apierr.New(http.StatusServiceUnavailable, apierr.CodeUnavailable, ctx.Err())
		}
		reason := "enhanced_error"
		if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
			reason = "breaker_open"
		}
		metrics.FallbacksTotal.WithLabelValues(reason).Inc()
		s.log.Warn("enhanced model failed, falling back to baseline",
			append(ctxutil.LogFields(ctx), "reason", reason, "error", res.Err)...)
	} else {
		metrics.FallbacksTotal.WithLabelValues("no_signal").Inc()
	}

	res := engine.Run(ctx, s.baseline, model.Input{Questions: in.Questions, Correct: in.Correct})
	if res.Err != nil {
		s.log.Error("baseline model failed", append(ctxutil.LogFields(ctx), "error", res.Err)...)
		return Prediction{}, apierr.Internal(apierr.CodePredictionFailed, fmt.Errorf("baseline prediction: %w", res.Err))
	}
	res.Output = nn.SigmoidSlice(res.Output)
	return prediction(LabelFallback, res), nil
}

// cacheable reports whether p came from the variant the request's signal
// selects. A fallback caused by an enhanced failure or an open breaker is
// never stored, so the next call tries the enhanced model again.
func cacheable(in model.Input, p Prediction) bool {
	if HasSignal(in.Confidence, in.Difficulty) {
		return p.Variant == model.VariantEnhanced
	}
	return p.Variant == model.VariantBaseline
}

func (s *Selector) runEnhanced(ctx context.Context, in model.Input) engine.Result {
	out, err := s.breaker.Execute(func() ([]float64, error) {
		return s.enhanced.Predict(ctx, in)
	})
	return engine.Result{Variant: model.VariantEnhanced, Output: out, Err: err}
}

func prediction(label string, res engine.Result) Prediction {
	ids := make([]int, len(res.Output))
	for i := range ids {
		ids[i] = i
	}
	return Prediction{ModelUsed: label, Variant: res.Variant, QuestionIDs: ids, Probabilities: res.Output}
}

func variantOf(label string) model.Variant {
	if label == LabelEnhanced {
		return model.VariantEnhanced
	}
	return model.VariantBaseline
}
