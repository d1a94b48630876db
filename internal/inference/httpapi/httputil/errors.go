package httputil

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
)

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteError aborts c with the status and code carried by err.
func WriteError(c *gin.Context, err error) {
	status, code := apierr.StatusOf(err)
	msg := ""
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	WriteJSON(c, status, ErrorEnvelope{Error: ErrorBody{Message: msg, Code: code}})
	c.Abort()
}
