package model

import (
	"time"

	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/units"
)

type constError string

func (e constError) Error() string { return string(e) }

// ErrInvalidSample matches every ValidationError via errors.Is.
var ErrInvalidSample = constError("invalid sample")

// ValidationError describes one rejected field of a sample submission.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return "model: invalid " + e.Field + ": " + e.Reason
}

// Unwrap returns the underlying cause, if any.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes every ValidationError match ErrInvalidSample.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidSample }

// SampleInput is a sample as submitted by a researcher or an import sheet.
type SampleInput struct {
	Latitude           float64             `json:"lat" yaml:"lat"`
	Longitude          float64             `json:"lon" yaml:"lon"`
	LocationName       string              `json:"location_name,omitempty" yaml:"location_name,omitempty"`
	SampledAt          *time.Time          `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	SourceType         SourceType          `json:"source_type" yaml:"source_type"`
	StandardPreference StandardPreference  `json:"standard_preference,omitempty" yaml:"standard_preference,omitempty"`
	Measurements       []units.Measurement `json:"measurements" yaml:"measurements"`
}

// NewSample validates in and returns a pending Sample with normalized
// measurements. A missing timestamp defaults to now; a missing standard
// preference defaults to BIS. The ID is left for the store to assign.
func (in SampleInput) NewSample(now time.Time) (*Sample, error) {
	loc := geo.Point{Latitude: in.Latitude, Longitude: in.Longitude}
	if err := loc.Validate(); err != nil {
		return nil, &ValidationError{Field: "location", Reason: err.Error(), Err: err}
	}
	if !in.SourceType.Valid() {
		return nil, &ValidationError{Field: "source_type", Reason: "must be one of Groundwater, Industrial Effluent, Surface Water"}
	}

	pref := in.StandardPreference
	switch pref {
	case "":
		pref = StandardBIS
	case StandardBIS, StandardWHO:
	default:
		return nil, &ValidationError{Field: "standard_preference", Reason: "must be BIS or WHO"}
	}

	if len(in.Measurements) == 0 {
		return nil, &ValidationError{Field: "measurements", Reason: "at least one measurement is required"}
	}

	set := make(map[string]bool, len(in.Measurements))
	ms := make([]Measurement, 0, len(in.Measurements))
	for _, raw := range in.Measurements {
		metal, mg, err := units.Normalize(raw)
		if err != nil {
			return nil, &ValidationError{Field: "measurements", Reason: err.Error(), Err: err}
		}
		if set[string(metal)] {
			return nil, &ValidationError{Field: "measurements", Reason: raw.Symbol + " reported twice", Err: units.ErrDuplicateMetal}
		}
		set[string(metal)] = true

		unit, _ := units.ParseUnit(raw.Unit)
		ms = append(ms, Measurement{
			Metal:         metal,
			Symbol:        raw.Symbol,
			Concentration: mg,
			OriginalValue: raw.Concentration,
			OriginalUnit:  string(unit),
		})
	}

	sampledAt := now
	if in.SampledAt != nil && !in.SampledAt.IsZero() {
		sampledAt = *in.SampledAt
	}

	return &Sample{
		Location:           loc,
		LocationName:       in.LocationName,
		SampledAt:          sampledAt.UTC(),
		SourceType:         in.SourceType,
		StandardPreference: pref,
		Measurements:       ms,
		Status:             SampleStatusPending,
		CreatedAt:          now.UTC(),
		UpdatedAt:          now.UTC(),
	}, nil
}
