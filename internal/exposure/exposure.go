// Package exposure estimates ingestion health risk from metal concentrations
// in drinking water for the adult and child exposure profiles.
package exposure

import (
	"bytes"
	"encoding/json"

	"github.com/sells-group/metalsense/internal/standards"
)

// NonCarcinogenic is reported in place of a cancer risk for metals without a
// slope factor.
const NonCarcinogenic = "Non-Carcinogenic"

// CancerRisk is either a lifetime risk value or the non-carcinogenic marker.
// It encodes as a JSON number or the string "Non-Carcinogenic".
type CancerRisk struct {
	Value        float64
	Carcinogenic bool
}

// Risk wraps a carcinogenic risk value.
func Risk(v float64) CancerRisk { return CancerRisk{Value: v, Carcinogenic: true} }

func (c CancerRisk) String() string {
	if !c.Carcinogenic {
		return NonCarcinogenic
	}
	b, _ := json.Marshal(c.Value)
	return string(b)
}

// MarshalJSON implements json.Marshaler.
func (c CancerRisk) MarshalJSON() ([]byte, error) {
	if !c.Carcinogenic {
		return json.Marshal(NonCarcinogenic)
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CancerRisk) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte(`"`)) {
		*c = CancerRisk{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Risk(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c CancerRisk) MarshalYAML() (any, error) {
	if !c.Carcinogenic {
		return NonCarcinogenic, nil
	}
	return c.Value, nil
}

// PerMetalRisk is the risk contribution of one metal for one demographic.
type PerMetalRisk struct {
	ChronicDailyIntake float64    `json:"chronic_daily_intake"` // mg/kg/day
	HazardQuotient     float64    `json:"hazard_quotient"`
	CancerRisk         CancerRisk `json:"cancer_risk"`
}

// DemographicRisk aggregates per-metal risk for one demographic.
type DemographicRisk struct {
	PerMetal         map[standards.Metal]PerMetalRisk `json:"per_metal"`
	TotalHazardIndex float64                          `json:"total_hazard_index"`
	TotalCancerRisk  float64                          `json:"total_cancer_risk"`
}

// Assessment holds the risk for both demographics.
type Assessment struct {
	Adult DemographicRisk `json:"adult"`
	Child DemographicRisk `json:"child"`
}

// Calculator computes intake and risk against a standards registry.
type Calculator struct {
	reg *standards.Registry
}

// NewCalculator creates a Calculator reading toxicity values and exposure
// profiles from reg.
func NewCalculator(reg *standards.Registry) *Calculator {
	return &Calculator{reg: reg}
}

// ChronicDailyIntake returns C·IR·EF·ED/(BW·AT) in mg/kg/day, or 0 when the
// denominator is not positive.
func ChronicDailyIntake(concentration float64, p standards.ExposureProfile, averagingTime float64) float64 {
	denom := p.BodyWeight * averagingTime
	if denom <= 0 {
		return 0
	}
	return concentration * p.IngestionRate * p.ExposureFrequency * p.ExposureDuration / denom
}

// HazardQuotient returns CDI/RfD, or 0 when RfD is not positive.
func HazardQuotient(cdi, rfd float64) float64 {
	if rfd <= 0 {
		return 0
	}
	return cdi / rfd
}

// MetalRisk computes the risk of one metal for profile p. The second return
// is false when the metal has no toxicity parameters.
func (c *Calculator) MetalRisk(m standards.Metal, concentration float64, p standards.ExposureProfile) (PerMetalRisk, bool) {
	param, ok := c.reg.Risk(m)
	if !ok {
		return PerMetalRisk{}, false
	}

	cdi := ChronicDailyIntake(concentration, p, p.AveragingTime)
	r := PerMetalRisk{
		ChronicDailyIntake: cdi,
		HazardQuotient:     HazardQuotient(cdi, param.RfD),
	}
	if csf, ok := param.SlopeFactor(); ok {
		r.CancerRisk = Risk(ChronicDailyIntake(concentration, p, p.CancerAveragingTime) * csf)
	}
	return r, true
}

// ForDemographic computes the risk of set for one demographic. Metals without
// toxicity parameters are left out. A demographic without a profile yields an
// empty result.
func (c *Calculator) ForDemographic(set standards.ConcentrationSet, d standards.Demographic) DemographicRisk {
	out := DemographicRisk{PerMetal: make(map[standards.Metal]PerMetalRisk)}
	p, ok := c.reg.Profile(d)
	if !ok {
		return out
	}

	for _, m := range set.Metals() {
		r, ok := c.MetalRisk(m, set[m], p)
		if !ok {
			continue
		}
		out.PerMetal[m] = r
		out.TotalHazardIndex += r.HazardQuotient
		if r.CancerRisk.Carcinogenic {
			out.TotalCancerRisk += r.CancerRisk.Value
		}
	}
	return out
}

// Assess computes the risk of set for both demographics.
func (c *Calculator) Assess(set standards.ConcentrationSet) Assessment {
	return Assessment{
		Adult: c.ForDemographic(set, standards.Adult),
		Child: c.ForDemographic(set, standards.Child),
	}
}
