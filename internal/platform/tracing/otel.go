package tracing

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
}

// exporterConfig is read from the standard OTEL_* variables.
type exporterConfig struct {
	Enabled  bool              `env:"OTEL_ENABLED"`
	Endpoint string            `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool              `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	Headers  map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	Ratio    float64           `env:"OTEL_SAMPLER_RATIO" envDefault:"0.1"`
}

func loadExporterConfig() (exporterConfig, error) {
	var c exporterConfig
	if err := env.Parse(&c); err != nil {
		return exporterConfig{}, err
	}
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Ratio = math.Max(0, math.Min(1, c.Ratio))
	return c, nil
}

var (
	initOnce sync.Once
	shutdown func(context.Context) error
)

// Init installs the global tracer provider when OTEL_ENABLED is true. It is
// safe to call more than once; only the first call has an effect. The
// returned function flushes and stops the provider and is never nil.
func Init(ctx context.Context, log *logger.Logger, cfg Config) func(context.Context) error {
	initOnce.Do(func() {
		ec, err := loadExporterConfig()
		if err != nil {
			if log != nil {
				log.Warn("otel config invalid; tracing disabled", "error", err)
			}
			return
		}
		if !ec.Enabled {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "neurobridge-kt"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		))
		if err != nil && log != nil {
			log.Warn("otel resource init failed (continuing)", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ec.Ratio))),
			sdktrace.WithResource(res),
		}
		exp, err := newExporter(ctx, log, ec)
		if err != nil && log != nil {
			log.Warn("otel exporter init failed (continuing)", "error", err)
		}
		if exp != nil {
			opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized", "service", name, "endpoint", ec.Endpoint, "sample_ratio", ec.Ratio)
		}
	})
	if shutdown == nil {
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func newExporter(ctx context.Context, log *logger.Logger, ec exporterConfig) (sdktrace.SpanExporter, error) {
	if ec.Endpoint == "" {
		if log != nil {
			log.Warn("otel using stdout exporter (no OTLP endpoint configured)")
		}
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(ec.Endpoint)}
	if ec.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(ec.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(ec.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}
