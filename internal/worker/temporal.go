package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	tworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/store"
)

// TemporalConfig locates the Temporal frontend and task queue.
type TemporalConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// Temporal activity settings for AssessWorkflow.
const (
	ActivityTimeout  = time.Minute
	ActivityAttempts = 3
)

// Outcome is the workflow result: the headline values of the stored assessment.
type Outcome struct {
	SampleID string            `json:"sample_id"`
	HPI      float64           `json:"hpi"`
	Category classify.Category `json:"category"`
	IsSafe   bool              `json:"is_safe"`
}

// WorkflowID is the Temporal workflow ID used for a sample. One sample has at
// most one running assessment.
func WorkflowID(sampleID string) string { return "assess-" + sampleID }

// AssessWorkflow runs the AssessSample activity for one sample.
func AssessWorkflow(ctx workflow.Context, sampleID string) (*Outcome, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    ActivityAttempts,
		},
	})

	var a *Activities
	var out Outcome
	if err := workflow.ExecuteActivity(ctx, a.AssessSample, sampleID).Get(ctx, &out); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("sample assessed", "sample_id", sampleID, "hpi", out.HPI)
	return &out, nil
}

// Activities hosts the assessment activity for a Temporal worker.
type Activities struct {
	Assessor SampleAssessor
}

// AssessSample assesses and stores one sample. Missing or invalid samples
// fail without retry.
func (a *Activities) AssessSample(ctx context.Context, sampleID string) (*Outcome, error) {
	res, err := a.Assessor.Assess(ctx, sampleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, model.ErrInvalidSample) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "SampleRejected", err)
		}
		return nil, err
	}
	return &Outcome{SampleID: sampleID, HPI: res.HPI, Category: res.Category, IsSafe: res.IsSafe}, nil
}

// WorkflowStarter is the part of client.Client used to start workflows.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalDispatcher starts one AssessWorkflow per dispatched sample.
type TemporalDispatcher struct {
	starter   WorkflowStarter
	taskQueue string
}

// NewTemporalDispatcher creates a dispatcher on taskQueue.
func NewTemporalDispatcher(s WorkflowStarter, taskQueue string) *TemporalDispatcher {
	return &TemporalDispatcher{starter: s, taskQueue: taskQueue}
}

// Dispatch starts the assessment workflow for sampleID. A workflow already
// running for the sample is reused.
func (d *TemporalDispatcher) Dispatch(ctx context.Context, sampleID string) error {
	_, err := d.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(sampleID),
		TaskQueue: d.taskQueue,
	}, AssessWorkflow, sampleID)
	if err != nil {
		return eris.Wrapf(err, "worker: start workflow for %s", sampleID)
	}
	zap.L().Debug("workflow started", zap.String("sample_id", sampleID), zap.String("task_queue", d.taskQueue))
	return nil
}

// DialTemporal connects a Temporal client that logs through zap.
func DialTemporal(cfg TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    newTemporalLogger(zap.L()),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "worker: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// NewTemporalWorker registers AssessWorkflow and acts on taskQueue. The
// caller starts and stops the returned worker.
func NewTemporalWorker(c client.Client, taskQueue string, acts *Activities) tworker.Worker {
	w := tworker.New(c, taskQueue, tworker.Options{})
	w.RegisterWorkflow(AssessWorkflow)
	w.RegisterActivity(acts)
	return w
}
