// Package indices computes water pollution indices from a set of metal
// concentrations: the heavy metal pollution index (HPI), the heavy metal
// evaluation index (HEI), the metal index (MI) and the geo-accumulation
// index (I-geo).
package indices

import (
	"math"

	"github.com/sells-group/metalsense/internal/standards"
)

// IGeoBackgroundFactor corrects background values for lithogenic variation.
const IGeoBackgroundFactor = 1.5

// Result holds the indices for one concentration set.
type Result struct {
	HPI     float64                     `json:"hpi"`
	HEI     float64                     `json:"hei"`
	MI      float64                     `json:"mi"`
	IGeoMax float64                     `json:"i_geo_max"`
	IGeo    map[standards.Metal]float64 `json:"i_geo"`
}

// Calculator computes indices against a standards registry.
type Calculator struct {
	reg *standards.Registry
}

// NewCalculator creates a Calculator reading limits from reg.
func NewCalculator(reg *standards.Registry) *Calculator {
	return &Calculator{reg: reg}
}

// HPI returns Σ(Qi·Wi)/ΣWi with Qi = (Mi−Ii)/(Si−Ii)·100, over metals that
// have both a standard and a weight. A metal with Si == Ii contributes its
// weight but a zero sub-index. An empty sum yields 0.
func (c *Calculator) HPI(set standards.ConcentrationSet) float64 {
	var sumQW, sumW float64
	for _, m := range set.Metals() {
		s, ok := c.reg.Standard(m)
		if !ok {
			continue
		}
		w, ok := c.reg.Weight(m)
		if !ok {
			continue
		}

		var qi float64
		if d := s.Permissible - s.Ideal; d != 0 {
			qi = (set[m] - s.Ideal) / d * 100
		}
		sumQW += qi * w
		sumW += w
	}
	if sumW == 0 {
		return 0
	}
	return sumQW / sumW
}

// HEI returns Σ(Mi/MACi) over recognized metals with a positive MAC.
func (c *Calculator) HEI(set standards.ConcentrationSet) float64 {
	var sum float64
	for _, m := range set.Metals() {
		s, ok := c.reg.Standard(m)
		if !ok || s.MAC <= 0 {
			continue
		}
		sum += set[m] / s.MAC
	}
	return sum
}

// MI returns the metal index. It shares the HEI formula and is reported
// separately.
func (c *Calculator) MI(set standards.ConcentrationSet) float64 {
	return c.HEI(set)
}

// IGeo returns log2(C/(1.5·Bn)) for one metal. Unknown metals, zero or
// negative concentrations and non-positive backgrounds yield 0.
func (c *Calculator) IGeo(m standards.Metal, concentration float64) float64 {
	s, ok := c.reg.Standard(m)
	if !ok || concentration <= 0 || s.Background <= 0 {
		return 0
	}
	return math.Log2(concentration / (IGeoBackgroundFactor * s.Background))
}

// IGeoAll returns I-geo for every recognized metal in set.
func (c *Calculator) IGeoAll(set standards.ConcentrationSet) map[standards.Metal]float64 {
	out := make(map[standards.Metal]float64, len(set))
	for _, m := range set.Metals() {
		if _, ok := c.reg.Standard(m); !ok {
			continue
		}
		out[m] = c.IGeo(m, set[m])
	}
	return out
}

// IGeoMax returns the largest I-geo over every metal in set. Unknown metals
// count as 0 toward the maximum; an empty set yields 0.
func (c *Calculator) IGeoMax(set standards.ConcentrationSet) float64 {
	return igeoMax(set, c.IGeoAll(set))
}

// Compute returns every index for set.
func (c *Calculator) Compute(set standards.ConcentrationSet) Result {
	igeo := c.IGeoAll(set)
	hei := c.HEI(set)
	return Result{
		HPI:     c.HPI(set),
		HEI:     hei,
		MI:      hei,
		IGeoMax: igeoMax(set, igeo),
		IGeo:    igeo,
	}
}

// igeoMax takes the maximum of the recognized values in igeo, with 0 for
// each key of set that igeo leaves out.
func igeoMax(set standards.ConcentrationSet, igeo map[standards.Metal]float64) float64 {
	if len(set) == 0 {
		return 0
	}
	best := math.Inf(-1)
	for m := range set {
		v, ok := igeo[m]
		if !ok {
			v = 0
		}
		if v > best {
			best = v
		}
	}
	return best
}
