// Package model defines the two knowledge-tracing networks: the baseline
// DKT, which sees only question identity and correctness, and DKT+, which
// also conditions on confidence and difficulty.
package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/yungbote/neurobridge-kt/internal/kt/nn"
)

type Variant string

const (
	VariantBaseline Variant = "dkt"
	VariantEnhanced Variant = "dkt+"
)

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dkt", "baseline":
		return VariantBaseline, nil
	case "dkt+", "dktplus", "dkt_plus", "enhanced":
		return VariantEnhanced, nil
	default:
		return "", fmt.Errorf("unknown model variant %q (want dkt or dkt+)", s)
	}
}

var (
	ErrIndexOutOfRange = errors.New("combined index out of range")
	ErrShapeMismatch   = errors.New("parameter shape mismatch")
	ErrMissingParam    = errors.New("missing parameter")
	ErrEmptySequence   = errors.New("empty sequence")
)

// DropoutP is the output dropout rate applied during training.
const DropoutP = 0.5

// Hyperparameters fix the shape of a model instance. The lambda weights
// only affect the DKT+ training objective.
type Hyperparameters struct {
	NumQuestions int     `json:"num_q"`
	EmbSize      int     `json:"emb_size"`
	HiddenSize   int     `json:"hidden_size"`
	LambdaR      float64 `json:"lambda_r"`
	LambdaW1     float64 `json:"lambda_w1"`
	LambdaW2     float64 `json:"lambda_w2"`
}

func (h Hyperparameters) Validate() error {
	switch {
	case h.NumQuestions <= 0:
		return fmt.Errorf("num_questions must be positive, got %d", h.NumQuestions)
	case h.EmbSize <= 0:
		return fmt.Errorf("emb_size must be positive, got %d", h.EmbSize)
	case h.HiddenSize <= 0:
		return fmt.Errorf("hidden_size must be positive, got %d", h.HiddenSize)
	case h.LambdaR < 0 || h.LambdaW1 < 0 || h.LambdaW2 < 0:
		return errors.New("lambda weights must be non-negative")
	}
	return nil
}

// Input is one learner's interaction history. Confidence and Difficulty
// may be nil for the baseline variant.
type Input struct {
	Questions  []int
	Correct    []int
	Confidence []float64
	Difficulty []float64
}

func (in Input) Len() int { return len(in.Questions) }

// Prefix returns the first n steps.
func (in Input) Prefix(n int) Input {
	out := Input{Questions: in.Questions[:n], Correct: in.Correct[:n]}
	if in.Confidence != nil {
		out.Confidence = in.Confidence[:n]
	}
	if in.Difficulty != nil {
		out.Difficulty = in.Difficulty[:n]
	}
	return out
}

// Model is a loaded, read-only network. Predict may be called from many
// goroutines at once: each call owns its recurrent state.
type Model interface {
	Variant() Variant
	Hyper() Hyperparameters
	// Predict returns the per-question output at the final step of in.
	// DKT+ returns probabilities; DKT returns logits that the caller must
	// squash.
	Predict(in Input) ([]float64, error)
	Params() []nn.NamedTensor
}

// Trainable models expose a recorded forward pass and its gradient.
type Trainable interface {
	Model
	// Forward runs every step of in. A nil rng disables dropout.
	Forward(in Input, rng *rand.Rand) (*Pass, error)
	// Backward accumulates the parameter gradients for dOut (the loss
	// gradient with respect to Pass.Out) into grads, which is aligned with
	// Params().
	Backward(p *Pass, dOut [][]float64, grads []*nn.Tensor)
}

// Pass is a recorded forward pass over one sequence.
type Pass struct {
	// Out holds one row of NumQuestions values per step: probabilities for
	// DKT+, logits for DKT.
	Out [][]float64

	index []int
	lstm  *nn.LSTMTrace
	drop  [][]float64
	conf  []float64
	diff  []float64
}

// New builds a randomly initialised model of the given variant.
func New(v Variant, h Hyperparameters, rng *rand.Rand) (Trainable, error) {
	switch v {
	case VariantEnhanced:
		return NewDKTPlus(h, rng)
	case VariantBaseline:
		return NewDKT(h, rng)
	default:
		return nil, fmt.Errorf("unknown model variant %q", v)
	}
}

// FromTensors builds a model whose parameters are copied from ts, keyed by
// state-dict name. Every parameter must be present with its exact shape and
// no unknown tensors may remain.
func FromTensors(v Variant, h Hyperparameters, ts map[string]*nn.Tensor) (Trainable, error) {
	m, err := New(v, h, nil)
	if err != nil {
		return nil, err
	}
	if err := assign(m.Params(), ts); err != nil {
		return nil, err
	}
	return m, nil
}

func assign(params []nn.NamedTensor, ts map[string]*nn.Tensor) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		src, ok := ts[p.Name]
		if !ok || src == nil {
			return fmt.Errorf("%w: %s", ErrMissingParam, p.Name)
		}
		if !nn.ShapeEqual(src.Shape, p.Tensor.Shape) {
			return fmt.Errorf("%w: %s is %s, want %s", ErrShapeMismatch, p.Name, nn.ShapeString(src.Shape), nn.ShapeString(p.Tensor.Shape))
		}
		copy(p.Tensor.Data, src.Data)
		seen[p.Name] = true
	}
	for name := range ts {
		if !seen[name] {
			return fmt.Errorf("unexpected tensor %q in checkpoint", name)
		}
	}
	return nil
}

// projectLast applies the output layer to the final hidden state.
func projectLast(out *nn.Linear, hs [][]float64) []float64 {
	y := make([]float64, out.Out())
	out.Forward(hs[len(hs)-1], y)
	return y
}
