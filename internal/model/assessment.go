package model

import (
	"time"

	"github.com/sells-group/metalsense/internal/classify"
	"github.com/sells-group/metalsense/internal/engine"
)

// Assessment is the stored engine result for one sample. The headline values
// are copied out of Result so they can be filtered and sorted on.
type Assessment struct {
	SampleID         string            `json:"sample_id"`
	HPI              float64           `json:"hpi"`
	HEI              float64           `json:"hei"`
	MI               float64           `json:"mi"`
	IGeoMax          float64           `json:"i_geo_max"`
	HazardIndexAdult float64           `json:"hazard_index_adult"`
	HazardIndexChild float64           `json:"hazard_index_child"`
	CancerRiskAdult  float64           `json:"cancer_risk_adult"`
	CancerRiskChild  float64           `json:"cancer_risk_child"`
	Category         classify.Category `json:"category"`
	IsSafe           bool              `json:"is_safe"`
	RegistryVersion  string            `json:"registry_version"`
	Result           engine.Result     `json:"result"`
	AssessedAt       time.Time         `json:"assessed_at"`
}

// NewAssessment builds the stored form of res for sampleID.
func NewAssessment(sampleID string, res engine.Result, at time.Time) *Assessment {
	return &Assessment{
		SampleID:         sampleID,
		HPI:              res.Indices.HPI,
		HEI:              res.Indices.HEI,
		MI:               res.Indices.MI,
		IGeoMax:          res.Indices.IGeoMax,
		HazardIndexAdult: res.Risk.Adult.TotalHazardIndex,
		HazardIndexChild: res.Risk.Child.TotalHazardIndex,
		CancerRiskAdult:  res.Risk.Adult.TotalCancerRisk,
		CancerRiskChild:  res.Risk.Child.TotalCancerRisk,
		Category:         res.Classification.Category,
		IsSafe:           res.Classification.IsSafe,
		RegistryVersion:  res.RegistryVersion,
		Result:           res,
		AssessedAt:       at.UTC(),
	}
}

// AssessedSample pairs a sample with its assessment for listings and exports.
type AssessedSample struct {
	Sample     Sample      `json:"sample"`
	Assessment *Assessment `json:"assessment,omitempty"`
}
