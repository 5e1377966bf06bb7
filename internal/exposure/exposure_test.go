package exposure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/standards"
)

func newCalc() *Calculator {
	return NewCalculator(standards.Default())
}

func TestArsenicAdult(t *testing.T) {
	t.Parallel()
	calc := newCalc()

	adult := calc.ForDemographic(standards.ConcentrationSet{standards.Arsenic: 0.02}, standards.Adult)
	as := adult.PerMetal[standards.Arsenic]

	// 0.02*2.2*350*70 / (70*25550)
	assert.InDelta(t, 6.0274e-4, as.ChronicDailyIntake, 1e-8)
	assert.InDelta(t, 2.00913, as.HazardQuotient, 1e-5)
	require.True(t, as.CancerRisk.Carcinogenic)
	assert.InDelta(t, 9.0411e-4, as.CancerRisk.Value, 1e-8)

	assert.InDelta(t, as.HazardQuotient, adult.TotalHazardIndex, 1e-12)
	assert.InDelta(t, as.CancerRisk.Value, adult.TotalCancerRisk, 1e-12)
}

func TestArsenicChild(t *testing.T) {
	t.Parallel()
	calc := newCalc()

	child := calc.ForDemographic(standards.ConcentrationSet{standards.Arsenic: 0.02}, standards.Child)
	as := child.PerMetal[standards.Arsenic]

	// 0.02*1.8*350*6 / (15*2190)
	assert.InDelta(t, 2.30137e-3, as.ChronicDailyIntake, 1e-8)
	assert.InDelta(t, 7.67123, as.HazardQuotient, 1e-5)
	// lifetime averaging: 0.02*1.8*350*6 / (15*25550) * 1.5
	assert.InDelta(t, 2.95890e-4, as.CancerRisk.Value, 1e-9)
}

func TestNonCarcinogen(t *testing.T) {
	t.Parallel()
	calc := newCalc()

	adult := calc.ForDemographic(standards.ConcentrationSet{standards.Zinc: 3}, standards.Adult)
	zn := adult.PerMetal[standards.Zinc]

	assert.False(t, zn.CancerRisk.Carcinogenic)
	assert.Equal(t, NonCarcinogenic, zn.CancerRisk.String())
	assert.Zero(t, adult.TotalCancerRisk)
	assert.Greater(t, adult.TotalHazardIndex, 0.0)
}

func TestHazardIndexAdditive(t *testing.T) {
	t.Parallel()
	calc := newCalc()

	a := standards.ConcentrationSet{standards.Lead: 0.03, standards.Copper: 0.5}
	b := standards.ConcentrationSet{standards.Nickel: 1.87, standards.Mercury: 0.002}
	union := standards.ConcentrationSet{}
	for m, v := range a {
		union[m] = v
	}
	for m, v := range b {
		union[m] = v
	}

	for _, d := range standards.Demographics() {
		got := calc.ForDemographic(union, d).TotalHazardIndex
		want := calc.ForDemographic(a, d).TotalHazardIndex + calc.ForDemographic(b, d).TotalHazardIndex
		assert.InDelta(t, want, got, 1e-9, string(d))
	}
}

func TestCancerRiskUnchangedByNonCarcinogen(t *testing.T) {
	t.Parallel()
	calc := newCalc()

	base := calc.Assess(standards.ConcentrationSet{standards.Cadmium: 0.004})
	more := calc.Assess(standards.ConcentrationSet{standards.Cadmium: 0.004, standards.Iron: 2})

	assert.InDelta(t, base.Adult.TotalCancerRisk, more.Adult.TotalCancerRisk, 0)
	assert.InDelta(t, base.Child.TotalCancerRisk, more.Child.TotalCancerRisk, 0)
	assert.Greater(t, more.Adult.TotalHazardIndex, base.Adult.TotalHazardIndex)
}

func TestUnknownMetalExcluded(t *testing.T) {
	t.Parallel()
	calc := newCalc()

	res := calc.Assess(standards.ConcentrationSet{"uranium": 5, standards.Lead: 0.01})
	assert.Len(t, res.Adult.PerMetal, 1)
	assert.Len(t, res.Child.PerMetal, 1)
	assert.NotContains(t, res.Adult.PerMetal, standards.Metal("uranium"))
}

func TestEmptySet(t *testing.T) {
	t.Parallel()
	res := newCalc().Assess(standards.ConcentrationSet{})
	assert.Empty(t, res.Adult.PerMetal)
	assert.Zero(t, res.Adult.TotalHazardIndex)
	assert.Zero(t, res.Child.TotalCancerRisk)
}

func TestChildRiskExceedsAdult(t *testing.T) {
	t.Parallel()
	// Field sample: Ni 1.87, Cu 0.98, As 0.005 mg/L.
	res := newCalc().Assess(standards.ConcentrationSet{
		standards.Nickel:  1.87,
		standards.Copper:  0.98,
		standards.Arsenic: 0.005,
	})

	assert.InDelta(t, 15.4959, res.Child.TotalHazardIndex, 1e-4)
	assert.Greater(t, res.Child.TotalHazardIndex, res.Adult.TotalHazardIndex)
}

func TestDegenerateDenominators(t *testing.T) {
	t.Parallel()

	assert.Zero(t, ChronicDailyIntake(1, standards.ExposureProfile{BodyWeight: 0, IngestionRate: 2}, 100))
	assert.Zero(t, ChronicDailyIntake(1, standards.ExposureProfile{BodyWeight: 70, IngestionRate: 2}, 0))
	assert.Zero(t, HazardQuotient(0.5, 0))

	tables := standards.DefaultTables()
	tables.Risk["inert"] = standards.RiskParameter{RfD: 0}
	calc := NewCalculator(standards.New(tables))
	r := calc.ForDemographic(standards.ConcentrationSet{"inert": 1}, standards.Adult)
	assert.Zero(t, r.PerMetal["inert"].HazardQuotient)
	assert.Greater(t, r.PerMetal["inert"].ChronicDailyIntake, 0.0)
}

func TestMissingProfile(t *testing.T) {
	t.Parallel()
	tables := standards.DefaultTables()
	delete(tables.Profiles, standards.Child)
	calc := NewCalculator(standards.New(tables))

	res := calc.Assess(standards.ConcentrationSet{standards.Lead: 0.02})
	assert.Len(t, res.Adult.PerMetal, 1)
	assert.Empty(t, res.Child.PerMetal)
}

func TestCancerRiskJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(PerMetalRisk{ChronicDailyIntake: 1, HazardQuotient: 2, CancerRisk: CancerRisk{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chronic_daily_intake":1,"hazard_quotient":2,"cancer_risk":"Non-Carcinogenic"}`, string(b))

	b, err = json.Marshal(Risk(0.00025))
	require.NoError(t, err)
	assert.Equal(t, "0.00025", string(b))

	var got PerMetalRisk
	require.NoError(t, json.Unmarshal([]byte(`{"cancer_risk":0.5}`), &got))
	assert.Equal(t, Risk(0.5), got.CancerRisk)

	require.NoError(t, json.Unmarshal([]byte(`{"cancer_risk":"Non-Carcinogenic"}`), &got))
	assert.False(t, got.CancerRisk.Carcinogenic)

	assert.Error(t, json.Unmarshal([]byte(`{"cancer_risk":true}`), &got))
}
