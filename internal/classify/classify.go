// Package classify maps index and risk values to discrete categories.
package classify

// HPI thresholds.
const (
	// LowPollutionThreshold is the largest HPI still classified Safe.
	LowPollutionThreshold = 50.0
	// UnsafeThreshold is the largest HPI still considered safe to drink.
	UnsafeThreshold = 100.0
)

// Category is a water quality class derived from HPI.
type Category string

// Categories, from cleanest to most polluted.
const (
	Safe               Category = "Safe"
	ModeratelyPolluted Category = "Moderately Polluted"
	Hazardous          Category = "Hazardous"
)

// Classification is the category and safety flag of one sample.
type Classification struct {
	Category Category `json:"category"`
	IsSafe   bool     `json:"is_safe"`
}

// HPI classifies a heavy metal pollution index value.
func HPI(hpi float64) Classification {
	switch {
	case hpi > UnsafeThreshold:
		return Classification{Category: Hazardous, IsSafe: false}
	case hpi > LowPollutionThreshold:
		return Classification{Category: ModeratelyPolluted, IsSafe: true}
	default:
		return Classification{Category: Safe, IsSafe: true}
	}
}

// HazardIndexThreshold is the hazard index above which adverse
// non-carcinogenic effects are possible.
const HazardIndexThreshold = 1.0

// HazardConcern reports whether a hazard index exceeds HazardIndexThreshold.
func HazardConcern(hi float64) bool {
	return hi > HazardIndexThreshold
}

// CancerBand is a lifetime cancer risk class.
type CancerBand string

// Cancer risk bands.
const (
	CancerNegligible   CancerBand = "negligible"
	CancerAcceptable   CancerBand = "acceptable"
	CancerUnacceptable CancerBand = "unacceptable"
)

// Target cancer risk range bounds.
const (
	CancerRiskLower = 1e-6
	CancerRiskUpper = 1e-4
)

// CancerRiskBand classifies a total lifetime cancer risk.
func CancerRiskBand(cr float64) CancerBand {
	switch {
	case cr > CancerRiskUpper:
		return CancerUnacceptable
	case cr > CancerRiskLower:
		return CancerAcceptable
	default:
		return CancerNegligible
	}
}
