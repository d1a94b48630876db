// Package engine runs one loaded knowledge-tracing model.
package engine

import (
	"context"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

// Info describes a loaded model.
type Info struct {
	Variant      model.Variant `json:"variant"`
	NumQuestions int           `json:"num_questions"`
	EmbSize      int           `json:"emb_size"`
	HiddenSize   int           `json:"hidden_size"`
	Fingerprint  string        `json:"fingerprint,omitempty"`
	Source       string        `json:"source,omitempty"`
}

type Engine interface {
	Info() Info
	// Predict returns the model's raw output for the final step: DKT+
	// returns probabilities, DKT returns logits.
	Predict(ctx context.Context, in model.Input) ([]float64, error)
}

// Result is one engine run. Err is set instead of Output on failure.
type Result struct {
	Variant model.Variant
	Output  []float64
	Err     error
}

// Run calls e and wraps the outcome.
func Run(ctx context.Context, e Engine, in model.Input) Result {
	out, err := e.Predict(ctx, in)
	return Result{Variant: e.Info().Variant, Output: out, Err: err}
}
