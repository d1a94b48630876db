package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func handleReadyz(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Ready() {
			c.String(http.StatusServiceUnavailable, "loading")
			return
		}
		c.String(http.StatusOK, "ok")
	}
}
