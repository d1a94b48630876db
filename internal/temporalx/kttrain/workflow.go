package kttrain

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs one training job. The activity is retried a few times on
// infrastructure failures; bad requests fail immediately.
func Workflow(ctx workflow.Context, in Input) (Output, error) {
	if in.Request.OutputURI == "" {
		return Output{}, temporal.NewNonRetryableApplicationError("kt_train: output_uri is required", "invalid_request", errors.New("missing output_uri"))
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{"invalid_request"},
		},
	})

	workflow.GetLogger(ctx).Info("training started", "output_uri", in.Request.OutputURI, "variant", string(in.Request.Train.Variant))
	var out Output
	if err := workflow.ExecuteActivity(ctx, ActivityRun, in).Get(ctx, &out); err != nil {
		return Output{}, err
	}
	workflow.GetLogger(ctx).Info("training finished", "best_epoch", out.Result.BestEpoch, "best_auc", out.Result.BestAUC)
	return out, nil
}
