package ckpt

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

// ModelConfig is model_config.json. Pointer fields let Load tell a missing
// key from a zero value.
type ModelConfig struct {
	Variant    string   `json:"variant,omitempty"`
	NumQ       *int     `json:"num_q,omitempty"`
	EmbSize    *int     `json:"emb_size"`
	HiddenSize *int     `json:"hidden_size"`
	LambdaR    *float64 `json:"lambda_r,omitempty"`
	LambdaW1   *float64 `json:"lambda_w1,omitempty"`
	LambdaW2   *float64 `json:"lambda_w2,omitempty"`
}

func ParseModelConfig(b []byte) (ModelConfig, error) {
	var c ModelConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return ModelConfig{}, fmt.Errorf("model_config.json: %w", err)
	}
	return c, nil
}

// Hyper resolves the hyperparameters for variant v. numQ is the question
// count found in the weights; a num_q key in the file takes precedence.
func (c ModelConfig) Hyper(v model.Variant, numQ int) (model.Hyperparameters, error) {
	var missing []string
	if c.EmbSize == nil {
		missing = append(missing, "emb_size")
	}
	if c.HiddenSize == nil {
		missing = append(missing, "hidden_size")
	}
	if v == model.VariantEnhanced {
		if c.LambdaR == nil {
			missing = append(missing, "lambda_r")
		}
		if c.LambdaW1 == nil {
			missing = append(missing, "lambda_w1")
		}
		if c.LambdaW2 == nil {
			missing = append(missing, "lambda_w2")
		}
	}
	if len(missing) > 0 {
		return model.Hyperparameters{}, fmt.Errorf("model_config.json: missing %v", missing)
	}
	if c.Variant != "" {
		cv, err := model.ParseVariant(c.Variant)
		if err != nil {
			return model.Hyperparameters{}, fmt.Errorf("model_config.json: %w", err)
		}
		if cv != v {
			return model.Hyperparameters{}, fmt.Errorf("model_config.json: checkpoint is %s, expected %s", cv, v)
		}
	}
	h := model.Hyperparameters{NumQuestions: numQ, EmbSize: *c.EmbSize, HiddenSize: *c.HiddenSize}
	if c.NumQ != nil {
		h.NumQuestions = *c.NumQ
	}
	if h.NumQuestions <= 0 {
		return model.Hyperparameters{}, errors.New("model_config.json: cannot determine num_q")
	}
	if c.LambdaR != nil {
		h.LambdaR = *c.LambdaR
	}
	if c.LambdaW1 != nil {
		h.LambdaW1 = *c.LambdaW1
	}
	if c.LambdaW2 != nil {
		h.LambdaW2 = *c.LambdaW2
	}
	return h, h.Validate()
}

// ConfigFor describes m in model_config.json form.
func ConfigFor(m model.Model) ModelConfig {
	h := m.Hyper()
	c := ModelConfig{
		Variant:    string(m.Variant()),
		NumQ:       &h.NumQuestions,
		EmbSize:    &h.EmbSize,
		HiddenSize: &h.HiddenSize,
	}
	if m.Variant() == model.VariantEnhanced {
		c.LambdaR, c.LambdaW1, c.LambdaW2 = &h.LambdaR, &h.LambdaW1, &h.LambdaW2
	}
	return c
}
