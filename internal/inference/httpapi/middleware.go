package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/yungbote/neurobridge-kt/internal/inference/httpapi/httputil"
	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
	"github.com/yungbote/neurobridge-kt/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/platform/metrics"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

func traceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = strings.TrimSpace(c.GetHeader(headerTraceID))
		}
		ctx := ctxutil.WithRequest(c.Request.Context(), ctxutil.Request{RequestID: reqID, TraceID: traceID})
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(headerRequestID, reqID)
		if traceID != "" {
			c.Writer.Header().Set(headerTraceID, traceID)
		}
		c.Next()
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		fields = append(fields, ctxutil.LogFields(c.Request.Context())...)
		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

func recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				fields := append(ctxutil.LogFields(c.Request.Context()), "panic", rec, "stack", string(debug.Stack()))
				log.Error("panic recovered", fields...)
				httputil.WriteError(c, apierr.Internal(apierr.CodeInternal, fmt.Errorf("internal server error")))
			}
		}()
		c.Next()
	}
}

func observeMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func corsFor(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", headerRequestID},
		ExposeHeaders:    []string{headerRequestID, headerTraceID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// clientLimiter keeps one token bucket per client IP. Buckets idle for
// longer than idleTTL are dropped on the next sweep.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	lastScan time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(rps) + 1
	}
	return &clientLimiter{
		limiters: map[string]*limiterEntry{},
		rate:     rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
	}
}

func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	if now.Sub(l.lastScan) > l.idleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastAccess) > l.idleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastScan = now
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastAccess = now
	lim := e.limiter
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

func rateLimit(rps float64, burst int) gin.HandlerFunc {
	l := newClientLimiter(rps, burst)
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP(), time.Now()) {
			httputil.WriteError(c, apierr.New(http.StatusTooManyRequests, apierr.CodeRateLimited, errors.New("rate limit exceeded")))
			return
		}
		c.Next()
	}
}

// requireJWT accepts HS256 bearer tokens signed with secret.
func requireJWT(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) <= 7 || !strings.EqualFold(header[:7], "Bearer ") {
			httputil.WriteError(c, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, errors.New("missing bearer token")))
			return
		}
		token, err := parser.Parse(header[7:], func(*jwt.Token) (interface{}, error) { return key, nil })
		if err != nil || !token.Valid {
			httputil.WriteError(c, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, errors.New("invalid token")))
			return
		}
		if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
			c.Set("subject", sub)
		}
		c.Next()
	}
}
