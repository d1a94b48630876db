package v1

import (
	"slices"

	"github.com/gin-gonic/gin/binding"

	"github.com/yungbote/neurobridge-kt/internal/inference/engine"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
)

// PredictRequest is one learner's history. question_ids is accepted as an
// alias for q_ids.
type PredictRequest struct {
	QIDs        []int     `json:"q_ids"`
	QuestionIDs []int     `json:"question_ids,omitempty"`
	Correctness []int     `json:"correctness" binding:"dive,oneof=0 1"`
	Confidence  []float64 `json:"confidence"`
	Difficulty  []float64 `json:"difficulty"`
}

// Validate checks what the selector cannot: alias agreement and the
// correctness domain. Length checks happen in the selector.
func (r *PredictRequest) Validate() error {
	if len(r.QIDs) > 0 && len(r.QuestionIDs) > 0 && !slices.Equal(r.QIDs, r.QuestionIDs) {
		return apierr.BadRequest("q_ids and question_ids disagree")
	}
	if err := binding.Validator.ValidateStruct(r); err != nil {
		return apierr.BadRequest("correctness values must be 0 or 1")
	}
	return nil
}

func (r PredictRequest) Input() model.Input {
	q := r.QIDs
	if len(q) == 0 {
		q = r.QuestionIDs
	}
	return model.Input{
		Questions:  q,
		Correct:    r.Correctness,
		Confidence: r.Confidence,
		Difficulty: r.Difficulty,
	}
}

type ModelsResponse struct {
	Models []engine.Info `json:"models"`
}
