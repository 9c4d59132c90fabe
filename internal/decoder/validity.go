package decoder

import "github.com/bft-labs/satlink/internal/domain"

// Range is the declared valid interval of a field.
// Bounds are inclusive unless stated otherwise; a missing bound is open.
type Range struct {
	Low           *float64 `yaml:"low"`
	High          *float64 `yaml:"high"`
	LowInclusive  *bool    `yaml:"low_inclusive"`
	HighInclusive *bool    `yaml:"high_inclusive"`

	// Calibrated selects whether the calibrated (default) or raw value is compared
	Calibrated *bool `yaml:"calibrated"`
}

// Check classifies v against the range.
func (r *Range) Check(v float64) domain.FieldStatus {
	if r == nil {
		return domain.StatusValid
	}
	if r.Low != nil {
		if boolOr(r.LowInclusive, true) {
			if v < *r.Low {
				return domain.StatusTooLow
			}
		} else if v <= *r.Low {
			return domain.StatusTooLow
		}
	}
	if r.High != nil {
		if boolOr(r.HighInclusive, true) {
			if v > *r.High {
				return domain.StatusTooHigh
			}
		} else if v >= *r.High {
			return domain.StatusTooHigh
		}
	}
	return domain.StatusValid
}

// UsesCalibrated reports whether the calibrated value is compared.
func (r *Range) UsesCalibrated() bool {
	return r == nil || boolOr(r.Calibrated, true)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
