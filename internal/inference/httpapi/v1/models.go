package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-kt/internal/inference/httpapi/httputil"
	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
)

func handleModels(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, l, ok := b()
		if !ok {
			httputil.WriteError(c, apierr.New(http.StatusServiceUnavailable, apierr.CodeUnavailable, errNotReady))
			return
		}
		httputil.WriteJSON(c, http.StatusOK, ModelsResponse{Models: l.ListModels()})
	}
}
