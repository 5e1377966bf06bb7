// Package standards holds the reference data the index and risk calculators
// read from: drinking-water limits, background values, toxicity parameters
// and exposure profiles.
package standards

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Metal is a canonical metal key such as "lead" or "arsenic".
type Metal string

// Supported metal keys.
const (
	Arsenic   Metal = "arsenic"
	Cadmium   Metal = "cadmium"
	Chromium  Metal = "chromium"
	Copper    Metal = "copper"
	Iron      Metal = "iron"
	Lead      Metal = "lead"
	Manganese Metal = "manganese"
	Mercury   Metal = "mercury"
	Nickel    Metal = "nickel"
	Zinc      Metal = "zinc"
)

// ConcentrationSet maps a metal key to its concentration in mg/L.
type ConcentrationSet map[Metal]float64

// Metals returns the keys of the set in sorted order.
func (s ConcentrationSet) Metals() []Metal {
	out := make([]Metal, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sortMetals(out)
	return out
}

// MetalStandard holds the limits for one metal. All values are mg/L except
// Background, which is mg/kg.
type MetalStandard struct {
	Permissible float64 `yaml:"permissible" json:"permissible"` // Si
	Ideal       float64 `yaml:"ideal" json:"ideal"`             // Ii
	MAC         float64 `yaml:"mac" json:"mac"`
	Background  float64 `yaml:"background" json:"background"` // Bn
}

// RiskParameter holds the oral toxicity values for one metal. A nil CSF marks
// the metal as non-carcinogenic.
type RiskParameter struct {
	RfD float64  `yaml:"rfd" json:"rfd"`
	CSF *float64 `yaml:"csf,omitempty" json:"csf,omitempty"`
}

// SlopeFactor returns the cancer slope factor and whether the metal is a carcinogen.
func (p RiskParameter) SlopeFactor() (float64, bool) {
	if p.CSF == nil {
		return 0, false
	}
	return *p.CSF, true
}

// Demographic selects an exposure profile.
type Demographic string

// Supported demographics.
const (
	Adult Demographic = "adult"
	Child Demographic = "child"
)

// Demographics lists the demographics every assessment covers.
func Demographics() []Demographic {
	return []Demographic{Adult, Child}
}

// ExposureProfile describes drinking-water intake for one demographic.
type ExposureProfile struct {
	BodyWeight          float64 `yaml:"body_weight" json:"body_weight"`                     // kg
	IngestionRate       float64 `yaml:"ingestion_rate" json:"ingestion_rate"`               // L/day
	ExposureFrequency   float64 `yaml:"exposure_frequency" json:"exposure_frequency"`       // days/year
	ExposureDuration    float64 `yaml:"exposure_duration" json:"exposure_duration"`         // years
	AveragingTime       float64 `yaml:"averaging_time" json:"averaging_time"`               // days, non-carcinogenic
	CancerAveragingTime float64 `yaml:"cancer_averaging_time" json:"cancer_averaging_time"` // days, lifetime
}

// Tables is the raw content of a registry.
type Tables struct {
	Version   string                          `yaml:"version" json:"version"`
	Standards map[Metal]MetalStandard         `yaml:"standards" json:"standards"`
	Risk      map[Metal]RiskParameter         `yaml:"risk" json:"risk"`
	Profiles  map[Demographic]ExposureProfile `yaml:"profiles" json:"profiles"`
}

// Registry is an immutable lookup over a set of Tables. It is safe for
// concurrent use.
type Registry struct {
	version   string
	standards map[Metal]MetalStandard
	weights   map[Metal]float64
	risks     map[Metal]RiskParameter
	profiles  map[Demographic]ExposureProfile
	metals    []Metal
}

// New builds a Registry from t. The tables are copied; later changes to t do
// not affect the registry. Unit weights are derived here as 1/Si; a metal
// with Si <= 0 gets no weight.
func New(t Tables) *Registry {
	r := &Registry{
		version:   t.Version,
		standards: make(map[Metal]MetalStandard, len(t.Standards)),
		weights:   make(map[Metal]float64, len(t.Standards)),
		risks:     make(map[Metal]RiskParameter, len(t.Risk)),
		profiles:  make(map[Demographic]ExposureProfile, len(t.Profiles)),
	}

	seen := make(map[Metal]bool)
	for m, s := range t.Standards {
		r.standards[m] = s
		if s.Permissible > 0 {
			r.weights[m] = 1 / s.Permissible
		}
		seen[m] = true
	}
	for m, p := range t.Risk {
		if p.CSF != nil {
			csf := *p.CSF
			p.CSF = &csf
		}
		r.risks[m] = p
		seen[m] = true
	}
	for d, p := range t.Profiles {
		r.profiles[d] = p
	}

	for m := range seen {
		r.metals = append(r.metals, m)
	}
	sortMetals(r.metals)

	return r
}

// Version identifies the reference data the registry was built from.
func (r *Registry) Version() string { return r.version }

// Standard returns the limits for m.
func (r *Registry) Standard(m Metal) (MetalStandard, bool) {
	s, ok := r.standards[m]
	return s, ok
}

// Weight returns the HPI unit weight Wi = 1/Si for m.
func (r *Registry) Weight(m Metal) (float64, bool) {
	w, ok := r.weights[m]
	return w, ok
}

// Risk returns the toxicity parameters for m.
func (r *Registry) Risk(m Metal) (RiskParameter, bool) {
	p, ok := r.risks[m]
	if ok && p.CSF != nil {
		csf := *p.CSF
		p.CSF = &csf
	}
	return p, ok
}

// Profile returns the exposure profile for d.
func (r *Registry) Profile(d Demographic) (ExposureProfile, bool) {
	p, ok := r.profiles[d]
	return p, ok
}

// Known reports whether m appears in any table of the registry.
func (r *Registry) Known(m Metal) bool {
	_, std := r.standards[m]
	_, risk := r.risks[m]
	return std || risk
}

// Metals returns every metal the registry knows, sorted.
func (r *Registry) Metals() []Metal {
	out := make([]Metal, len(r.metals))
	copy(out, r.metals)
	return out
}

// Tables returns a copy of the registry contents.
func (r *Registry) Tables() Tables {
	t := Tables{
		Version:   r.version,
		Standards: make(map[Metal]MetalStandard, len(r.standards)),
		Risk:      make(map[Metal]RiskParameter, len(r.risks)),
		Profiles:  make(map[Demographic]ExposureProfile, len(r.profiles)),
	}
	for m, s := range r.standards {
		t.Standards[m] = s
	}
	for m := range r.risks {
		t.Risk[m], _ = r.Risk(m)
	}
	for d, p := range r.profiles {
		t.Profiles[d] = p
	}
	return t
}

// Validate reports every entry that breaks the invariants the calculators
// rely on. A nil return means the registry is usable as-is.
func (r *Registry) Validate() error {
	var problems []string

	for _, m := range r.metals {
		if s, ok := r.standards[m]; ok {
			if s.Permissible <= 0 {
				problems = append(problems, string(m)+": permissible limit must be positive")
			}
			if s.Permissible == s.Ideal {
				problems = append(problems, string(m)+": permissible and ideal values must differ")
			}
			if s.Ideal < 0 {
				problems = append(problems, string(m)+": ideal value must not be negative")
			}
			if s.MAC <= 0 {
				problems = append(problems, string(m)+": MAC must be positive")
			}
			if s.Background <= 0 {
				problems = append(problems, string(m)+": background value must be positive")
			}
		}
		if p, ok := r.risks[m]; ok {
			if p.RfD <= 0 {
				problems = append(problems, string(m)+": RfD must be positive")
			}
			if p.CSF != nil && *p.CSF <= 0 {
				problems = append(problems, string(m)+": CSF must be positive when present")
			}
		}
	}

	for _, d := range Demographics() {
		p, ok := r.profiles[d]
		if !ok {
			problems = append(problems, string(d)+": exposure profile missing")
			continue
		}
		if p.BodyWeight <= 0 || p.AveragingTime <= 0 || p.CancerAveragingTime <= 0 {
			problems = append(problems, string(d)+": body weight and averaging times must be positive")
		}
		if p.IngestionRate < 0 || p.ExposureFrequency < 0 || p.ExposureDuration < 0 {
			problems = append(problems, string(d)+": intake parameters must not be negative")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("standards: invalid registry: %s", strings.Join(problems, "; "))
	}
	return nil
}

func sortMetals(ms []Metal) {
	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
}
