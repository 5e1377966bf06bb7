// Package model defines the records shared by the store, API and workers.
package model

import (
	"time"

	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/standards"
)

// SampleStatus is the assessment state of a sample.
type SampleStatus string

const (
	SampleStatusPending   SampleStatus = "pending"
	SampleStatusAssessing SampleStatus = "assessing"
	SampleStatusComplete  SampleStatus = "complete"
	SampleStatusFailed    SampleStatus = "failed"
)

// SourceType is the kind of water body a sample was drawn from.
type SourceType string

const (
	SourceGroundwater        SourceType = "Groundwater"
	SourceIndustrialEffluent SourceType = "Industrial Effluent"
	SourceSurfaceWater       SourceType = "Surface Water"
)

// SourceTypes lists every accepted source type.
func SourceTypes() []SourceType {
	return []SourceType{SourceGroundwater, SourceIndustrialEffluent, SourceSurfaceWater}
}

// Valid reports whether s is an accepted source type.
func (s SourceType) Valid() bool {
	for _, st := range SourceTypes() {
		if s == st {
			return true
		}
	}
	return false
}

// StandardPreference names the regulatory body a researcher compares against.
type StandardPreference string

const (
	StandardBIS StandardPreference = "BIS"
	StandardWHO StandardPreference = "WHO"
)

// Measurement is one normalized reading of a sample. Concentration is mg/L;
// the submitted value and unit are kept alongside.
type Measurement struct {
	Metal         standards.Metal `json:"metal"`
	Symbol        string          `json:"symbol"`
	Concentration float64         `json:"concentration"`
	OriginalValue float64         `json:"original_value"`
	OriginalUnit  string          `json:"original_unit"`
}

// Sample is a georeferenced water sample and its measurements.
type Sample struct {
	ID                 string             `json:"id"`
	Location           geo.Point          `json:"location"`
	LocationName       string             `json:"location_name,omitempty"`
	SampledAt          time.Time          `json:"sampled_at"`
	SourceType         SourceType         `json:"source_type"`
	StandardPreference StandardPreference `json:"standard_preference"`
	Measurements       []Measurement      `json:"measurements"`
	Status             SampleStatus       `json:"status"`
	Error              string             `json:"error,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Concentrations returns the sample's measurements as a ConcentrationSet.
func (s *Sample) Concentrations() standards.ConcentrationSet {
	set := make(standards.ConcentrationSet, len(s.Measurements))
	for _, m := range s.Measurements {
		set[m.Metal] = m.Concentration
	}
	return set
}
