// Package mock provides a scripted engine for tests.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/yungbote/neurobridge-kt/internal/inference/engine"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

// Engine returns Output (or Err) from every call and counts calls.
type Engine struct {
	Variant model.Variant
	Output  []float64
	Err     error
	// PredictFunc, when set, replaces Output and Err.
	PredictFunc func(ctx context.Context, in model.Input) ([]float64, error)

	calls atomic.Int64
}

func New(v model.Variant, out []float64) *Engine {
	return &Engine{Variant: v, Output: out}
}

func (e *Engine) Info() engine.Info {
	return engine.Info{Variant: e.Variant, NumQuestions: len(e.Output), Fingerprint: "mock-" + string(e.Variant)}
}

func (e *Engine) Predict(ctx context.Context, in model.Input) ([]float64, error) {
	e.calls.Add(1)
	if e.PredictFunc != nil {
		return e.PredictFunc(ctx, in)
	}
	if e.Err != nil {
		return nil, e.Err
	}
	return append([]float64(nil), e.Output...), nil
}

func (e *Engine) Calls() int { return int(e.calls.Load()) }
