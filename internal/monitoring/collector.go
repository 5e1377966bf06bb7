// Package monitoring watches the stream of assessments and raises webhook
// alerts when contamination or processing failures cross thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/store"
)

// MetricsSnapshot holds a point-in-time view of assessment activity.
type MetricsSnapshot struct {
	// Samples touched within the lookback window, by status.
	SamplesPending  int `json:"samples_pending"`
	SamplesComplete int `json:"samples_complete"`
	SamplesFailed   int `json:"samples_failed"`

	// FailureRate is failed / (complete + failed).
	FailureRate float64 `json:"failure_rate"`

	// Assessments written within the lookback window.
	Assessed   int     `json:"assessed"`
	Unsafe     int     `json:"unsafe"`
	Hazardous  int     `json:"hazardous"`
	UnsafeRate float64 `json:"unsafe_rate"`
	MeanHPI    float64 `json:"mean_hpi"`
	MaxHPI     float64 `json:"max_hpi"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StatsSource is the slice of store.Store the collector reads.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*store.Stats, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store StatsSource
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st StatsSource) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of assessment metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	stats, err := c.store.Stats(ctx, now.Add(-time.Duration(lookbackHours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect stats")
	}

	snap.SamplesPending = stats.SamplesByStatus[model.SampleStatusPending] +
		stats.SamplesByStatus[model.SampleStatusAssessing]
	snap.SamplesComplete = stats.SamplesByStatus[model.SampleStatusComplete]
	snap.SamplesFailed = stats.SamplesByStatus[model.SampleStatusFailed]
	if finished := snap.SamplesComplete + snap.SamplesFailed; finished > 0 {
		snap.FailureRate = float64(snap.SamplesFailed) / float64(finished)
	}

	snap.Assessed = stats.Assessed
	snap.Unsafe = stats.Unsafe
	snap.Hazardous = stats.AssessmentsByCategory[classify.Hazardous]
	snap.MeanHPI = stats.MeanHPI
	snap.MaxHPI = stats.MaxHPI
	if snap.Assessed > 0 {
		snap.UnsafeRate = float64(snap.Unsafe) / float64(snap.Assessed)
	}

	return snap, nil
}
