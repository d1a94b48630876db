// Package app wires the inference server: configuration, model loading,
// the HTTP and gRPC surfaces, and orderly shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/yungbote/neurobridge-kt/internal/inference/cache"
	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/grpcapi"
	"github.com/yungbote/neurobridge-kt/internal/inference/httpapi"
	"github.com/yungbote/neurobridge-kt/internal/inference/router"
	"github.com/yungbote/neurobridge-kt/internal/inference/selector"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/gcp"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/platform/shutdown"
	"github.com/yungbote/neurobridge-kt/internal/platform/tracing"
	"github.com/yungbote/neurobridge-kt/internal/registry"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

type App struct {
	Log    *logger.Logger
	Config *config.Config

	http  *httpapi.Server
	grpc  atomic.Pointer[grpc.Server]
	hooks shutdown.Hooks
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &App{Log: log, Config: cfg, http: httpapi.NewServer(cfg, log)}, nil
}

// Run serves until ctx is cancelled. Health endpoints answer while the
// models load; a load failure stops the process with an error.
func (a *App) Run(ctx context.Context) error {
	defer a.Log.Sync()
	a.hooks.Add("tracing", tracing.Init(ctx, a.Log, tracing.Config{
		ServiceName: "neurobridge-kt-inference",
		Environment: a.Config.Env,
		Version:     Version,
	}))

	srv := a.http.HTTPServer()
	errCh := make(chan error, 2)
	go func() {
		a.Log.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	loadErr := make(chan error, 1)
	go func() { loadErr <- a.load(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	case err := <-loadErr:
		if err != nil {
			runErr = err
			break
		}
		select {
		case <-ctx.Done():
		case err := <-errCh:
			runErr = err
		}
	}

	timeout := a.Config.HTTP.ShutdownTimeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("http shutdown", "error", err)
	}
	if gs := a.grpc.Load(); gs != nil {
		gs.GracefulStop()
	}
	if err := a.hooks.Run(shutdownCtx); err != nil {
		a.Log.Warn("shutdown hooks", "error", err)
	}
	return runErr
}

func (a *App) load(ctx context.Context) error {
	cfg := a.Config
	start := time.Now()

	var deps router.Deps
	if gcp.IsURI(cfg.Models.Enhanced.Dir) || gcp.IsURI(cfg.Models.Baseline.Dir) || cfg.Registry.Driver != "" {
		objects, err := gcp.NewObjectStore(ctx, a.Log)
		if err != nil {
			if gcp.IsURI(cfg.Models.Enhanced.Dir) || gcp.IsURI(cfg.Models.Baseline.Dir) {
				return fmt.Errorf("object storage: %w", err)
			}
			a.Log.Warn("object storage unavailable; gs:// snapshots will fail to load", "error", err)
		} else {
			deps.Objects = objects
			a.hooks.Add("object store", func(context.Context) error { return objects.Close() })
		}
	}
	if driver := strings.TrimSpace(cfg.Registry.Driver); driver != "" {
		db, err := registry.Open(driver, cfg.Registry.DSN)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.hooks.Add("registry", func(context.Context) error { return sqlDB.Close() })
		}
		deps.Snapshots = registry.NewSnapshotRepo(db, a.Log)
	}

	r, err := router.Load(ctx, a.Log, cfg.Models, deps)
	if err != nil {
		return err
	}
	enh, _ := r.Engine(model.VariantEnhanced)
	base, _ := r.Engine(model.VariantBaseline)

	c, closeCache, err := cache.New(ctx, cfg.Cache, a.Log)
	if err != nil {
		return err
	}
	a.hooks.Add("cache", func(context.Context) error { return closeCache() })

	sel, err := selector.New(a.Log, enh, base, cfg.Selector, c)
	if err != nil {
		return err
	}
	a.http.SetBackend(sel, r)

	if addr := strings.TrimSpace(cfg.GRPC.Addr); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", addr, err)
		}
		gs, gsrv := grpcapi.NewGRPCServer(a.Log, sel)
		gsrv.SetServing()
		a.grpc.Store(gs)
		go func() {
			a.Log.Info("grpc listening", "addr", addr)
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				a.Log.Error("grpc server stopped", "error", err)
			}
		}()
	}
	a.Log.Info("models ready", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
