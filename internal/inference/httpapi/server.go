// Package httpapi serves predictions, model listings and health over HTTP.
package httpapi

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	apiv1 "github.com/yungbote/neurobridge-kt/internal/inference/httpapi/v1"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/platform/metrics"
)

type backend struct {
	predictor apiv1.Predictor
	models    apiv1.ModelLister
}

// Server answers health checks immediately and prediction routes once
// SetBackend has been called.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	backend atomic.Pointer[backend]
	handler http.Handler
}

func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{cfg: cfg, log: log.With("service", "HTTPServer")}
	s.handler = s.routes()
	return s
}

// SetBackend publishes the loaded services and marks the server ready.
func (s *Server) SetBackend(p apiv1.Predictor, m apiv1.ModelLister) {
	s.backend.Store(&backend{predictor: p, models: m})
}

func (s *Server) Ready() bool { return s.backend.Load() != nil }

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       s.cfg.HTTP.IdleTimeout.Duration,
	}
}

func (s *Server) resolve() (apiv1.Predictor, apiv1.ModelLister, bool) {
	b := s.backend.Load()
	if b == nil {
		return nil, nil, false
	}
	return b.predictor, b.models, true
}

func (s *Server) routes() http.Handler {
	if strings.EqualFold(s.cfg.Env, "production") || strings.EqualFold(s.cfg.Env, "prod") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(recovery(s.log))
	r.Use(otelgin.Middleware("neurobridge-kt"))
	r.Use(traceContext())
	r.Use(observeMetrics())
	r.Use(requestLogger(s.log))
	if len(s.cfg.HTTP.CORSOrigins) > 0 {
		r.Use(corsFor(s.cfg.HTTP.CORSOrigins))
	}

	r.GET("/healthz", handleHealthz)
	r.GET("/readyz", handleReadyz(s))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	var guards []gin.HandlerFunc
	if s.cfg.HTTP.RateLimitRPS > 0 {
		guards = append(guards, rateLimit(s.cfg.HTTP.RateLimitRPS, s.cfg.HTTP.RateLimitBurst))
	}
	if secret := strings.TrimSpace(s.cfg.Auth.JWTSecret); secret != "" {
		guards = append(guards, requireJWT(secret))
	}
	root := r.Group("", guards...)
	v1 := r.Group("/v1", guards...)
	apiv1.Register(root, v1, s.cfg, s.log, s.resolve)
	return r
}
