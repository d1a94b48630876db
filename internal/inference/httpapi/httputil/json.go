package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
)

// DecodeJSON reads at most maxBytes of the request body into dst. Any
// failure is a 400, or a 413 when the body is too large.
func DecodeJSON(c *gin.Context, maxBytes int64, dst any) error {
	body := c.Request.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, maxBytes)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.New(http.StatusRequestEntityTooLarge, apierr.CodeInvalidRequest, err)
		}
		return apierr.BadRequest("malformed JSON body: %v", err)
	}
	return nil
}

func WriteJSON(c *gin.Context, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.Data(http.StatusInternalServerError, "application/json", []byte(`{"error":{"message":"encode response","code":"internal_error"}}`))
		return
	}
	c.Data(status, "application/json", b)
}
