// Package temporalworker polls the training task queue.
package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/temporalx"
	"github.com/yungbote/neurobridge-kt/internal/temporalx/kttrain"
)

type Runner struct {
	log     *logger.Logger
	tc      temporalsdkclient.Client
	cfg     temporalx.Config
	trainer kttrain.Trainer
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, trainer kttrain.Trainer) (*Runner, error) {
	if tc == nil {
		return nil, errors.New("temporal client is not configured")
	}
	if trainer == nil {
		return nil, errors.New("temporal worker needs a trainer")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{log: log.With("service", "TemporalWorker"), tc: tc, cfg: cfg, trainer: trainer}, nil
}

// Run starts the worker, retrying until cfg.WorkerStartMaxWait elapses, and
// blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("starting temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(r.cfg.WorkerStartMaxWait)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		err := w.Start()
		if err == nil {
			r.log.Info("temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			<-ctx.Done()
			w.Stop()
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(err, &nfe) && r.cfg.AutoRegisterNamespace {
			if nerr := temporalx.EnsureNamespace(ctx, r.log, r.cfg); nerr != nil {
				r.log.Warn("temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", nerr)
			}
		}
		if r.cfg.WorkerStartMaxWait <= 0 || time.Now().After(deadline) {
			if errors.As(err, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, err)
			}
			return err
		}
		r.log.Warn("temporal worker failed to start; retrying", "attempt", attempt, "error", err)

		if err := temporalx.Backoff(ctx, r.cfg, attempt); err != nil {
			return err
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		// Training saturates every core, so activities run one at a time by default.
		MaxConcurrentActivityExecutionSize:     r.cfg.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: 4,
	})
	acts := &kttrain.Activities{Log: r.log, Trainer: r.trainer}
	w.RegisterWorkflowWithOptions(kttrain.Workflow, workflow.RegisterOptions{Name: kttrain.WorkflowName})
	w.RegisterActivityWithOptions(acts.Run, activity.RegisterOptions{Name: kttrain.ActivityRun})
	return w
}
