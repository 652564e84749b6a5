// Package units guards the four-key unit system and computes conversion
// factors between unit systems.
package units

import (
	"sort"
	"strings"

	"shieldcore/pkg/domain"
)

// Allowed values per unit key.
var allowed = map[string][]string{
	domain.UnitLength:        {"m", "cm", "mm"},
	domain.UnitAngle:         {"radian", "degree"},
	domain.UnitDensity:       {"g/cm3"},
	domain.UnitRadioactivity: {"Bq"},
}

// SI normalization factors: length to metres, angle to radians, density to
// kg/m3, activity to Bq.
var siFactors = map[string]map[string]float64{
	domain.UnitLength:        {"m": 1, "cm": 0.01, "mm": 0.001},
	domain.UnitAngle:         {"radian": 1, "degree": 0.017453292519943295},
	domain.UnitDensity:       {"g/cm3": 1000},
	domain.UnitRadioactivity: {"Bq": 1},
}

// Keys returns the required unit keys in a stable order.
func Keys() []string {
	return []string{domain.UnitLength, domain.UnitAngle, domain.UnitDensity, domain.UnitRadioactivity}
}

// ValidateCompleteness fails unless units has exactly the four keys, each
// with an allowed value.
func ValidateCompleteness(units domain.UnitSystem) error {
	var missing []string
	for _, key := range Keys() {
		if _, ok := units[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return domain.Validationf(domain.CodeInvalidUnits, "unit", missing, "unit section is missing keys: %s", strings.Join(missing, ", "))
	}
	if extra := unknownKeys(units); len(extra) > 0 {
		return domain.Validationf(domain.CodeUnknownUnitKey, "unit", extra, "unit section has unknown keys: %s", strings.Join(extra, ", "))
	}
	for _, key := range Keys() {
		if err := validateValue(key, units[key]); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePartialUpdate merges patch into current and returns the merged
// system. Patch keys must be known unit keys and the merge must stay complete.
func ValidatePartialUpdate(current domain.UnitSystem, patch map[string]string) (domain.UnitSystem, error) {
	if extra := unknownKeys(patch); len(extra) > 0 {
		return nil, domain.Validationf(domain.CodeUnknownUnitKey, "unit", extra, "unknown unit keys: %s", strings.Join(extra, ", "))
	}
	merged := current.Clone()
	if merged == nil {
		merged = domain.UnitSystem{}
	}
	for key, value := range patch {
		if err := validateValue(key, value); err != nil {
			return nil, err
		}
		merged[key] = value
	}
	if err := ValidateCompleteness(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ConversionFactors holds, per key, the multiplier that turns a value
// expressed in the source units into the target units.
type ConversionFactors struct {
	Factors  map[string]float64 `json:"factors" yaml:"factors"`
	Identity bool               `json:"identity" yaml:"identity"`
}

// ComputeConversionFactors returns the per-key ratio of SI factors.
func ComputeConversionFactors(from, to domain.UnitSystem) (ConversionFactors, error) {
	if err := ValidateCompleteness(from); err != nil {
		return ConversionFactors{}, err
	}
	if err := ValidateCompleteness(to); err != nil {
		return ConversionFactors{}, err
	}
	out := ConversionFactors{Factors: make(map[string]float64, 4), Identity: true}
	for _, key := range Keys() {
		ratio := siFactors[key][from[key]] / siFactors[key][to[key]]
		out.Factors[key] = ratio
		if ratio != 1 {
			out.Identity = false
		}
	}
	return out, nil
}

// LengthToCM returns the factor converting a document length to centimetres.
func LengthToCM(units domain.UnitSystem) float64 {
	f, ok := siFactors[domain.UnitLength][units[domain.UnitLength]]
	if !ok {
		return 1
	}
	return f / 0.01
}

// AngleToRadians returns the factor converting a document angle to radians.
// Documents without a valid angle unit are treated as degrees.
func AngleToRadians(units domain.UnitSystem) float64 {
	f, ok := siFactors[domain.UnitAngle][units[domain.UnitAngle]]
	if !ok {
		return siFactors[domain.UnitAngle]["degree"]
	}
	return f
}

func validateValue(key, value string) error {
	for _, v := range allowed[key] {
		if v == value {
			return nil
		}
	}
	return domain.Validationf(domain.CodeInvalidUnits, "unit."+key, value, "%s must be one of [%s]", key, strings.Join(allowed[key], ", "))
}

func unknownKeys[V any](m map[string]V) []string {
	var extra []string
	for key := range m {
		if _, ok := allowed[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}
