package engine

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/standards"
	"github.com/sells-group/metalsense/internal/units"
)

func TestAssessFieldSample(t *testing.T) {
	t.Parallel()
	eng := New(standards.Default())

	res, err := eng.AssessMeasurements([]units.Measurement{
		{Symbol: "Ni", Concentration: 1.87, Unit: "mg/L"},
		{Symbol: "Cu", Concentration: 980, Unit: "µg/L"},
		{Symbol: "As", Concentration: 0.005, Unit: "mg/L"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 3010, res.Indices.HPI, 1e-6)
	assert.Equal(t, classify.Hazardous, res.Classification.Category)
	assert.False(t, res.Classification.IsSafe)
	assert.InDelta(t, 15.4959, res.Risk.Child.TotalHazardIndex, 1e-4)
	assert.True(t, res.Health.Child.HazardConcern)
	assert.True(t, res.Health.Adult.HazardConcern)
	assert.Equal(t, []standards.Metal{standards.Arsenic, standards.Copper, standards.Nickel}, res.Included)
	assert.Empty(t, res.Excluded)
	assert.Equal(t, standards.Version, res.RegistryVersion)
}

func TestAssessNoRecognizedMetals(t *testing.T) {
	t.Parallel()
	eng := New(standards.Default())

	res := eng.Assess(standards.ConcentrationSet{"uranium": 4, "thorium": 1})

	assert.Zero(t, res.Indices.HPI)
	assert.Zero(t, res.Indices.HEI)
	assert.Zero(t, res.Indices.MI)
	assert.Zero(t, res.Indices.IGeoMax)
	assert.Empty(t, res.Included)
	assert.Equal(t, []standards.Metal{"thorium", "uranium"}, res.Excluded)
	assert.Equal(t, classify.Safe, res.Classification.Category)
	assert.Empty(t, res.Risk.Adult.PerMetal)
	assert.Equal(t, classify.CancerNegligible, res.Health.Adult.CancerBand)
}

func TestAssessClassificationBoundary(t *testing.T) {
	t.Parallel()
	eng := New(standards.Default())

	atLimit := eng.Assess(standards.ConcentrationSet{standards.Lead: 0.01})
	assert.InDelta(t, 100, atLimit.Indices.HPI, 1e-9)
	assert.True(t, atLimit.Classification.IsSafe)

	over := eng.Assess(standards.ConcentrationSet{standards.Lead: 0.02})
	assert.InDelta(t, 200, over.Indices.HPI, 1e-9)
	assert.Equal(t, classify.Hazardous, over.Classification.Category)
}

func TestAssessMeasurementsInputError(t *testing.T) {
	t.Parallel()
	eng := New(standards.Default())

	_, err := eng.AssessMeasurements([]units.Measurement{{Symbol: "Xx", Concentration: 1, Unit: "mg/L"}})
	assert.ErrorIs(t, err, units.ErrUnknownSymbol)
}

func TestAssessConcurrent(t *testing.T) {
	t.Parallel()
	eng := New(standards.Default())
	set := standards.ConcentrationSet{standards.Lead: 0.02, standards.Arsenic: 0.02}
	want := eng.Assess(set)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, eng.Assess(set))
		}()
	}
	wg.Wait()
}

func TestResultJSON(t *testing.T) {
	t.Parallel()
	eng := New(standards.Default())

	res := eng.Assess(standards.ConcentrationSet{standards.Zinc: 1, standards.Lead: 0.005})
	b, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Contains(t, doc, "indices")
	assert.Contains(t, doc, "risk_assessment")
	assert.Contains(t, doc, "classification")

	adult := doc["risk_assessment"].(map[string]any)["adult"].(map[string]any)
	zinc := adult["per_metal"].(map[string]any)["zinc"].(map[string]any)
	assert.Equal(t, "Non-Carcinogenic", zinc["cancer_risk"])

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.InDelta(t, res.Indices.HPI, back.Indices.HPI, 1e-12)
	assert.Equal(t, res.Risk.Adult.PerMetal[standards.Lead].CancerRisk, back.Risk.Adult.PerMetal[standards.Lead].CancerRisk)
}
