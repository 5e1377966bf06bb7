// Package units converts raw field measurements into canonical metal keys and
// mg/L concentrations.
package units

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/metalsense/internal/standards"
)

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

// Sentinel errors, compared with errors.Is.
var (
	// ErrUnknownSymbol is returned for a chemical symbol outside the symbol table.
	ErrUnknownSymbol = constError("unknown metal symbol")

	// ErrInvalidUnit is returned for a unit other than mg/L or µg/L.
	ErrInvalidUnit = constError("invalid concentration unit")

	// ErrNegativeConcentration is returned for a concentration below zero.
	ErrNegativeConcentration = constError("negative concentration")

	// ErrInvalidConcentration is returned for NaN or infinite values.
	ErrInvalidConcentration = constError("invalid concentration")

	// ErrConcentrationTooHigh is returned above MaxConcentration.
	ErrConcentrationTooHigh = constError("concentration exceeds 1 kg/L")

	// ErrDuplicateMetal is returned when one sample reports the same metal twice.
	ErrDuplicateMetal = constError("duplicate metal in sample")
)

// Unit is a concentration unit.
type Unit string

// Supported units.
const (
	MilligramsPerLiter Unit = "mg/L"
	MicrogramsPerLiter Unit = "µg/L"
)

// MicrogramsPerMilligram is the µg/L to mg/L divisor.
const MicrogramsPerMilligram = 1000.0

// MaxConcentration is the largest accepted concentration in mg/L (1 kg/L).
const MaxConcentration = 1e6

var symbols = map[string]standards.Metal{
	"As": standards.Arsenic,
	"Pb": standards.Lead,
	"Cd": standards.Cadmium,
	"Hg": standards.Mercury,
	"Cr": standards.Chromium,
	"Fe": standards.Iron,
	"Mn": standards.Manganese,
	"Ni": standards.Nickel,
	"Zn": standards.Zinc,
	"Cu": standards.Copper,
}

// Measurement is one raw reading as submitted.
type Measurement struct {
	Symbol        string  `json:"metal" yaml:"metal"`
	Concentration float64 `json:"concentration" yaml:"concentration"`
	Unit          string  `json:"unit" yaml:"unit"`
}

// Lookup maps a chemical symbol such as "Pb" to its canonical key. Matching
// is exact after trimming whitespace.
func Lookup(symbol string) (standards.Metal, bool) {
	m, ok := symbols[strings.TrimSpace(symbol)]
	return m, ok
}

// Symbol returns the chemical symbol for a canonical key.
func Symbol(m standards.Metal) (string, bool) {
	for s, metal := range symbols {
		if metal == m {
			return s, true
		}
	}
	return "", false
}

// ParseUnit recognizes a unit string. The micro sign (U+00B5) and the Greek
// small letter mu (U+03BC) are both accepted, as is the ASCII form "ug/L".
// Matching is case-insensitive and an empty string means mg/L.
func ParseUnit(s string) (Unit, bool) {
	u := strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	switch u {
	case "", "mg/l":
		return MilligramsPerLiter, true
	case "μg/l", "ug/l", "mcg/l":
		return MicrogramsPerLiter, true
	default:
		return "", false
	}
}

// ToMilligrams converts value in unit to mg/L.
func ToMilligrams(value float64, unit Unit) (float64, error) {
	var mg float64
	switch unit {
	case MilligramsPerLiter:
		mg = value
	case MicrogramsPerLiter:
		mg = value / MicrogramsPerMilligram
	default:
		return 0, ErrInvalidUnit
	}
	if err := CheckConcentration(mg); err != nil {
		return 0, err
	}
	return mg, nil
}

// CheckConcentration validates a mg/L value: finite, non-negative and at
// most MaxConcentration.
func CheckConcentration(mg float64) error {
	switch {
	case math.IsNaN(mg) || math.IsInf(mg, 0):
		return ErrInvalidConcentration
	case mg < 0:
		return ErrNegativeConcentration
	case mg > MaxConcentration:
		return ErrConcentrationTooHigh
	}
	return nil
}

// ToMicrograms re-expresses a mg/L value in µg/L.
func ToMicrograms(mg float64) float64 {
	return mg * MicrogramsPerMilligram
}

// Normalize resolves the symbol and converts the concentration to mg/L.
func Normalize(m Measurement) (standards.Metal, float64, error) {
	metal, ok := Lookup(m.Symbol)
	if !ok {
		return "", 0, &InputError{Symbol: m.Symbol, Err: ErrUnknownSymbol}
	}
	unit, ok := ParseUnit(m.Unit)
	if !ok {
		return "", 0, &InputError{Symbol: m.Symbol, Err: ErrInvalidUnit}
	}
	mg, err := ToMilligrams(m.Concentration, unit)
	if err != nil {
		return "", 0, &InputError{Symbol: m.Symbol, Err: err}
	}
	return metal, mg, nil
}

// NormalizeAll normalizes every measurement of one sample into a
// ConcentrationSet. It stops at the first invalid measurement.
func NormalizeAll(ms []Measurement) (standards.ConcentrationSet, error) {
	set := make(standards.ConcentrationSet, len(ms))
	for _, m := range ms {
		metal, mg, err := Normalize(m)
		if err != nil {
			return nil, err
		}
		if _, dup := set[metal]; dup {
			return nil, &InputError{Symbol: m.Symbol, Err: ErrDuplicateMetal}
		}
		set[metal] = mg
	}
	return set, nil
}

// InputError ties a normalization failure to the offending symbol.
type InputError struct {
	Symbol string
	Err    error
}

func (e *InputError) Error() string {
	return "units: " + e.Symbol + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }
