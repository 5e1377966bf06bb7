// Package worker assesses stored samples in the background, either on a
// local goroutine pool or as Temporal workflows.
package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/engine"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/resilience"
)

// SampleStore is the part of store.Store the assessor needs.
type SampleStore interface {
	GetSample(ctx context.Context, id string) (*model.Sample, error)
	UpdateSampleStatus(ctx context.Context, id string, status model.SampleStatus, errMsg string) error
	SaveAssessment(ctx context.Context, a *model.Assessment) error
	SaveAssessments(ctx context.Context, as []*model.Assessment) (int64, error)
}

// Assessor loads a sample, runs the engine over it and persists the result.
type Assessor struct {
	store  SampleStore
	engine *engine.Engine
	policy resilience.Policy
	now    func() time.Time
}

// NewAssessor creates an Assessor. Store calls are retried under policy.
func NewAssessor(st SampleStore, eng *engine.Engine, policy resilience.Policy) *Assessor {
	return &Assessor{store: st, engine: eng, policy: policy, now: time.Now}
}

// Assess assesses one stored sample and marks it complete. When the result
// cannot be saved the sample is marked failed with the error text.
func (a *Assessor) Assess(ctx context.Context, sampleID string) (*model.Assessment, error) {
	log := zap.L().With(zap.String("sample_id", sampleID))

	smp, err := resilience.RetryValue(ctx, a.retryPolicy("get sample", sampleID), func(ctx context.Context) (*model.Sample, error) {
		return a.store.GetSample(ctx, sampleID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "worker: load sample %s", sampleID)
	}

	if err := a.store.UpdateSampleStatus(ctx, sampleID, model.SampleStatusAssessing, ""); err != nil {
		return nil, eris.Wrapf(err, "worker: mark sample %s assessing", sampleID)
	}

	res := a.engine.Assess(smp.Concentrations())
	assessment := model.NewAssessment(sampleID, res, a.now())

	err = resilience.Retry(ctx, a.retryPolicy("save assessment", sampleID), func(ctx context.Context) error {
		return a.store.SaveAssessment(ctx, assessment)
	})
	if err != nil {
		a.markFailed(ctx, sampleID, err)
		return nil, eris.Wrapf(err, "worker: save assessment %s", sampleID)
	}

	log.Info("sample assessed",
		zap.Float64("hpi", assessment.HPI),
		zap.String("category", string(assessment.Category)),
		zap.Bool("is_safe", assessment.IsSafe),
		zap.Int("excluded", len(res.Excluded)),
	)
	return assessment, nil
}

// AssessBatch assesses samples that are already loaded and saves all results
// in one bulk write.
func (a *Assessor) AssessBatch(ctx context.Context, samples []*model.Sample) ([]*model.Assessment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	at := a.now()
	out := make([]*model.Assessment, len(samples))
	for i, smp := range samples {
		out[i] = model.NewAssessment(smp.ID, a.engine.Assess(smp.Concentrations()), at)
	}

	n, err := resilience.RetryValue(ctx, a.retryPolicy("save assessments", ""), func(ctx context.Context) (int64, error) {
		return a.store.SaveAssessments(ctx, out)
	})
	if err != nil {
		for _, smp := range samples {
			a.markFailed(ctx, smp.ID, err)
		}
		return nil, eris.Wrap(err, "worker: save assessment batch")
	}

	zap.L().Info("batch assessed", zap.Int("samples", len(samples)), zap.Int64("rows", n))
	return out, nil
}

func (a *Assessor) markFailed(ctx context.Context, sampleID string, cause error) {
	// The sample must not stay "assessing" when the caller's context is gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.store.UpdateSampleStatus(ctx, sampleID, model.SampleStatusFailed, cause.Error()); err != nil {
		zap.L().Error("worker: mark sample failed",
			zap.String("sample_id", sampleID),
			zap.Error(err),
		)
	}
}

func (a *Assessor) retryPolicy(op, sampleID string) resilience.Policy {
	p := a.policy
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetry(op, zap.String("sample_id", sampleID))
	}
	return p
}
