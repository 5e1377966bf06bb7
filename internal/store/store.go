// Package store persists samples, measurements and assessments.
package store

import (
	"context"
	"time"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/model"
)

type constError string

func (e constError) Error() string { return string(e) }

// ErrNotFound is returned when a sample or assessment does not exist.
var ErrNotFound = constError("store: not found")

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 100

// SampleFilter specifies criteria for listing samples.
type SampleFilter struct {
	Status     model.SampleStatus `json:"status,omitempty"`
	SourceType model.SourceType   `json:"source_type,omitempty"`
	BBox       *geo.BBox          `json:"bbox,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset,omitempty"`
}

// AssessmentFilter specifies criteria for listing assessments.
type AssessmentFilter struct {
	UnsafeOnly bool              `json:"unsafe_only,omitempty"`
	Category   classify.Category `json:"category,omitempty"`
	Since      time.Time         `json:"since,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// Stats summarizes activity since a point in time.
type Stats struct {
	Since                 time.Time                  `json:"since"`
	SamplesByStatus       map[model.SampleStatus]int `json:"samples_by_status"`
	AssessmentsByCategory map[classify.Category]int  `json:"assessments_by_category"`
	Assessed              int                        `json:"assessed"`
	Unsafe                int                        `json:"unsafe"`
	MeanHPI               float64                    `json:"mean_hpi"`
	MaxHPI                float64                    `json:"max_hpi"`
}

// Store defines the persistence interface for samples and their assessments.
type Store interface {
	// Samples
	CreateSample(ctx context.Context, s *model.Sample) error
	GetSample(ctx context.Context, id string) (*model.Sample, error)
	ListSamples(ctx context.Context, filter SampleFilter) ([]model.Sample, error)
	UpdateSampleStatus(ctx context.Context, id string, status model.SampleStatus, errMsg string) error

	// Assessments
	SaveAssessment(ctx context.Context, a *model.Assessment) error
	SaveAssessments(ctx context.Context, as []*model.Assessment) (int64, error)
	GetAssessment(ctx context.Context, sampleID string) (*model.Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error)

	// Monitoring
	Stats(ctx context.Context, since time.Time) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func limitOf(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

func newStats(since time.Time) *Stats {
	return &Stats{
		Since:                 since,
		SamplesByStatus:       make(map[model.SampleStatus]int),
		AssessmentsByCategory: make(map[classify.Category]int),
	}
}
