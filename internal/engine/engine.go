// Package engine runs the index, risk and classification calculators over
// one sample. It is pure: no I/O, no logging, no shared mutable state.
package engine

import (
	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/exposure"
	"github.com/sells-group/metalsense/internal/indices"
	"github.com/sells-group/metalsense/internal/standards"
	"github.com/sells-group/metalsense/internal/units"
)

// Health summarizes the risk of one demographic.
type Health struct {
	HazardConcern bool                `json:"hazard_concern"`
	CancerBand    classify.CancerBand `json:"cancer_band"`
}

// HealthSummary holds Health for both demographics.
type HealthSummary struct {
	Adult Health `json:"adult"`
	Child Health `json:"child"`
}

// Result is the full assessment of one concentration set.
type Result struct {
	Indices         indices.Result          `json:"indices"`
	Risk            exposure.Assessment     `json:"risk_assessment"`
	Classification  classify.Classification `json:"classification"`
	Health          HealthSummary           `json:"health"`
	Included        []standards.Metal       `json:"included"`
	Excluded        []standards.Metal       `json:"excluded"`
	RegistryVersion string                  `json:"registry_version"`
}

// Engine assesses concentration sets against one registry. It is safe for
// concurrent use.
type Engine struct {
	reg      *standards.Registry
	indices  *indices.Calculator
	exposure *exposure.Calculator
}

// New creates an Engine over reg.
func New(reg *standards.Registry) *Engine {
	return &Engine{
		reg:      reg,
		indices:  indices.NewCalculator(reg),
		exposure: exposure.NewCalculator(reg),
	}
}

// Registry returns the registry the engine reads from.
func (e *Engine) Registry() *standards.Registry { return e.reg }

// Assess computes indices, health risk and classification for set. Metals the
// registry does not know are listed in Excluded and take no part in any sum.
func (e *Engine) Assess(set standards.ConcentrationSet) Result {
	res := Result{
		Indices:         e.indices.Compute(set),
		Risk:            e.exposure.Assess(set),
		Included:        []standards.Metal{},
		Excluded:        []standards.Metal{},
		RegistryVersion: e.reg.Version(),
	}
	res.Classification = classify.HPI(res.Indices.HPI)
	res.Health = HealthSummary{
		Adult: health(res.Risk.Adult),
		Child: health(res.Risk.Child),
	}

	for _, m := range set.Metals() {
		if e.reg.Known(m) {
			res.Included = append(res.Included, m)
		} else {
			res.Excluded = append(res.Excluded, m)
		}
	}
	return res
}

// AssessMeasurements normalizes raw measurements and assesses the result.
// Only normalization input errors are returned.
func (e *Engine) AssessMeasurements(ms []units.Measurement) (Result, error) {
	set, err := units.NormalizeAll(ms)
	if err != nil {
		return Result{}, err
	}
	return e.Assess(set), nil
}

func health(r exposure.DemographicRisk) Health {
	return Health{
		HazardConcern: classify.HazardConcern(r.TotalHazardIndex),
		CancerBand:    classify.CancerRiskBand(r.TotalCancerRisk),
	}
}
