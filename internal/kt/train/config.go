// Package train fits DKT and DKT+ models on shifted learner sequences and
// keeps the checkpoint with the best evaluation AUC.
package train

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

type Config struct {
	Variant   model.Variant         `json:"variant"`
	Hyper     model.Hyperparameters `json:"hyper"`
	Epochs    int                   `json:"epochs"`
	BatchSize int                   `json:"batch_size"`
	LR        float64               `json:"lr"`
	// GradClip caps the global gradient norm; zero disables clipping.
	GradClip float64 `json:"grad_clip"`
	Seed     uint64  `json:"seed"`
	// Workers bounds per-batch gradient parallelism. Results only depend
	// on Seed and Workers.
	Workers int `json:"workers"`
	// ModelKey labels metrics and snapshots, e.g. "dkt+".
	ModelKey string `json:"model_key"`
}

// DefaultConfig mirrors the published DKT+ settings.
func DefaultConfig(v model.Variant) Config {
	return Config{
		Variant: v,
		Hyper: model.Hyperparameters{
			EmbSize:    100,
			HiddenSize: 100,
			LambdaR:    0.01,
			LambdaW1:   0.003,
			LambdaW2:   3.0,
		},
		Epochs:    10,
		BatchSize: 64,
		LR:        1e-3,
		Seed:      1,
		Workers:   runtime.GOMAXPROCS(0),
		ModelKey:  string(v),
	}
}

func (c *Config) normalize() error {
	if c.Variant != model.VariantBaseline && c.Variant != model.VariantEnhanced {
		return fmt.Errorf("unknown model variant %q", c.Variant)
	}
	if err := c.Hyper.Validate(); err != nil {
		return err
	}
	if c.Epochs <= 0 {
		return errors.New("epochs must be positive")
	}
	if c.LR <= 0 {
		return errors.New("learning rate must be positive")
	}
	if c.GradClip < 0 {
		return errors.New("grad clip must be non-negative")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ModelKey == "" {
		c.ModelKey = string(c.Variant)
	}
	return nil
}
