// Package kttrain runs the training pipeline as a Temporal workflow so a
// long training job survives worker restarts and can be submitted remotely.
package kttrain

import (
	"github.com/yungbote/neurobridge-kt/internal/kt/pipeline"
)

const (
	WorkflowName = "kt_train"
	ActivityRun  = "kt_train_run"
)

// Input is the workflow argument. Request is passed through to the
// pipeline unchanged.
type Input struct {
	Request pipeline.Request `json:"request"`
}

type Output struct {
	Result pipeline.Result `json:"result"`
}
