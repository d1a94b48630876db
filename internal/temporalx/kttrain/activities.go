package kttrain

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/neurobridge-kt/internal/kt/dataset"
	"github.com/yungbote/neurobridge-kt/internal/kt/pipeline"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

// Trainer is the part of *pipeline.Runner the activity needs.
type Trainer interface {
	Train(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Activities struct {
	Log     *logger.Logger
	Trainer Trainer
}

func (a *Activities) Run(ctx context.Context, in Input) (Output, error) {
	if a == nil || a.Trainer == nil {
		return Output{}, errors.New("kt_train: activity not configured")
	}
	stop := startHeartbeat(ctx, 10*time.Second)
	defer stop()

	info := activity.GetInfo(ctx)
	a.Log.Info("kt_train activity", "workflow_id", info.WorkflowExecution.ID, "attempt", info.Attempt, "output_uri", in.Request.OutputURI)

	res, err := a.Trainer.Train(ctx, in.Request)
	if err != nil {
		if errors.Is(err, dataset.ErrQuestionOutOfRange) || errors.Is(err, pipeline.ErrInvalidRequest) {
			return Output{}, temporal.NewNonRetryableApplicationError(err.Error(), "invalid_request", err)
		}
		return Output{}, err
	}
	return Output{Result: *res}, nil
}

func startHeartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
