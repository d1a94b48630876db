package kttrain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Submit starts a kt_train workflow and returns its workflow and run ids.
func Submit(ctx context.Context, tc temporalsdkclient.Client, taskQueue string, in Input) (string, string, error) {
	key := in.Request.Train.ModelKey
	if key == "" {
		key = string(in.Request.Train.Variant)
	}
	id := fmt.Sprintf("kt-train-%s-%s", key, uuid.NewString())
	run, err := tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                taskQueue,
		WorkflowExecutionTimeout: 48 * time.Hour,
	}, WorkflowName, in)
	if err != nil {
		return "", "", fmt.Errorf("start %s: %w", WorkflowName, err)
	}
	return run.GetID(), run.GetRunID(), nil
}
