package v1

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/engine"
	"github.com/yungbote/neurobridge-kt/internal/inference/selector"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

// Predictor answers validated or unvalidated prediction requests.
type Predictor interface {
	Predict(ctx context.Context, in model.Input) (selector.Prediction, error)
}

type ModelLister interface {
	ListModels() []engine.Info
}

// Backend resolves the loaded services; it returns false until the models
// are ready.
type Backend func() (Predictor, ModelLister, bool)

// Register mounts the prediction routes on both rg and the legacy
// unversioned path.
func Register(root gin.IRouter, rg gin.IRouter, cfg *config.Config, log *logger.Logger, b Backend) {
	predict := handlePredict(cfg, log, b)
	root.POST("/predict", predict)
	rg.POST("/predict", predict)
	rg.GET("/models", handleModels(b))
}
