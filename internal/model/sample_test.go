package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/engine"
	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/standards"
	"github.com/sells-group/metalsense/internal/units"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func validInput() SampleInput {
	return SampleInput{
		Latitude:   27.8974,
		Longitude:  78.0880,
		SourceType: SourceGroundwater,
		Measurements: []units.Measurement{
			{Symbol: "Ni", Concentration: 1.87, Unit: "mg/L"},
			{Symbol: "Cu", Concentration: 980, Unit: "µg/L"},
		},
	}
}

func TestNewSample(t *testing.T) {
	t.Parallel()

	s, err := validInput().NewSample(now)
	require.NoError(t, err)

	assert.Empty(t, s.ID)
	assert.Equal(t, SampleStatusPending, s.Status)
	assert.Equal(t, StandardBIS, s.StandardPreference)
	assert.Equal(t, now, s.SampledAt)
	require.Len(t, s.Measurements, 2)
	assert.Equal(t, Measurement{
		Metal: standards.Copper, Symbol: "Cu", Concentration: 0.98,
		OriginalValue: 980, OriginalUnit: string(units.MicrogramsPerLiter),
	}, s.Measurements[1])

	set := s.Concentrations()
	assert.InDelta(t, 1.87, set[standards.Nickel], 1e-12)
	assert.InDelta(t, 0.98, set[standards.Copper], 1e-12)
}

func TestNewSampleKeepsTimestampAndPreference(t *testing.T) {
	t.Parallel()
	in := validInput()
	ts := time.Date(2024, 12, 5, 8, 30, 0, 0, time.FixedZone("IST", 19800))
	in.SampledAt = &ts
	in.StandardPreference = StandardWHO

	s, err := in.NewSample(now)
	require.NoError(t, err)
	assert.True(t, ts.Equal(s.SampledAt))
	assert.Equal(t, time.UTC, s.SampledAt.Location())
	assert.Equal(t, StandardWHO, s.StandardPreference)
}

func TestNewSampleValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*SampleInput)
		field  string
		cause  error
	}{
		{"latitude", func(in *SampleInput) { in.Latitude = 91 }, "location", geo.ErrLatitudeRange},
		{"longitude", func(in *SampleInput) { in.Longitude = -181 }, "location", geo.ErrLongitudeRange},
		{"source type", func(in *SampleInput) { in.SourceType = "Rainwater" }, "source_type", nil},
		{"standard", func(in *SampleInput) { in.StandardPreference = "EPA" }, "standard_preference", nil},
		{"no measurements", func(in *SampleInput) { in.Measurements = nil }, "measurements", nil},
		{"unknown symbol", func(in *SampleInput) {
			in.Measurements = append(in.Measurements, units.Measurement{Symbol: "U", Concentration: 1})
		}, "measurements", units.ErrUnknownSymbol},
		{"negative", func(in *SampleInput) { in.Measurements[0].Concentration = -1 }, "measurements", units.ErrNegativeConcentration},
		{"duplicate", func(in *SampleInput) {
			in.Measurements = append(in.Measurements, units.Measurement{Symbol: "Ni", Concentration: 1, Unit: "mg/L"})
		}, "measurements", units.ErrDuplicateMetal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			in.Measurements = append([]units.Measurement(nil), in.Measurements...)
			tt.mutate(&in)

			_, err := in.NewSample(now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSample))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestSourceTypeValid(t *testing.T) {
	t.Parallel()
	for _, st := range SourceTypes() {
		assert.True(t, st.Valid())
	}
	assert.False(t, SourceType("groundwater").Valid())
}

func TestNewAssessment(t *testing.T) {
	t.Parallel()
	res := engine.New(standards.Default()).Assess(standards.ConcentrationSet{standards.Arsenic: 0.02})

	a := NewAssessment("s-1", res, now)
	assert.Equal(t, "s-1", a.SampleID)
	assert.InDelta(t, 200, a.HPI, 1e-9)
	assert.Equal(t, classify.Hazardous, a.Category)
	assert.False(t, a.IsSafe)
	assert.InDelta(t, res.Risk.Child.TotalHazardIndex, a.HazardIndexChild, 0)
	assert.InDelta(t, 9.0411e-4, a.CancerRiskAdult, 1e-8)
	assert.Equal(t, standards.Version, a.RegistryVersion)
}
