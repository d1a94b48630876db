package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/httpapi/httputil"
	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
	"github.com/yungbote/neurobridge-kt/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

var errNotReady = errors.New("models are still loading")

func handlePredict(cfg *config.Config, log *logger.Logger, b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PredictRequest
		if err := httputil.DecodeJSON(c, cfg.HTTP.MaxRequestBytes, &req); err != nil {
			httputil.WriteError(c, err)
			return
		}
		if err := req.Validate(); err != nil {
			httputil.WriteError(c, err)
			return
		}

		p, _, ok := b()
		if !ok {
			httputil.WriteError(c, apierr.New(http.StatusServiceUnavailable, apierr.CodeUnavailable, errNotReady))
			return
		}
		out, err := p.Predict(c.Request.Context(), req.Input())
		if err != nil {
			if status, _ := apierr.StatusOf(err); status >= 500 {
				log.Error("prediction failed", append(ctxutil.LogFields(c.Request.Context()), "error", err)...)
			}
			httputil.WriteError(c, err)
			return
		}
		httputil.WriteJSON(c, http.StatusOK, out)
	}
}
