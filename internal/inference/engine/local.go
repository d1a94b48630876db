package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/metrics"
	"github.com/yungbote/neurobridge-kt/internal/platform/tracing"
)

// Local serves an in-process model. Each Predict call owns its recurrent
// state, so one Local is safe for concurrent use.
type Local struct {
	m    model.Model
	info Info
}

func NewLocal(m model.Model, fingerprint, source string) *Local {
	h := m.Hyper()
	return &Local{m: m, info: Info{
		Variant:      m.Variant(),
		NumQuestions: h.NumQuestions,
		EmbSize:      h.EmbSize,
		HiddenSize:   h.HiddenSize,
		Fingerprint:  fingerprint,
		Source:       source,
	}}
}

func (l *Local) Info() Info { return l.info }

func (l *Local) Predict(ctx context.Context, in model.Input) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := tracing.Tracer("kt/engine").Start(ctx, "engine.predict")
	defer span.End()
	span.SetAttributes(
		attribute.String("kt.variant", string(l.info.Variant)),
		attribute.Int("kt.steps", in.Len()),
	)

	start := time.Now()
	out, err := l.m.Predict(in)
	metrics.ObserveInference(string(l.info.Variant), err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}
