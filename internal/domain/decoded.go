package domain

import "time"

// FieldStatus is the validity of a decoded value against its declared range.
type FieldStatus int

const (
	StatusValid FieldStatus = iota
	StatusTooLow
	StatusTooHigh
)

// String returns a human-readable representation of the status.
func (s FieldStatus) String() string {
	switch s {
	case StatusValid:
		return "Valid"
	case StatusTooLow:
		return "TooLow"
	case StatusTooHigh:
		return "TooHigh"
	default:
		return "Unknown"
	}
}

// DecodedField is one named, calibrated value of a decoded frame.
type DecodedField struct {
	Name string

	// Value is a float64 when the field is numeric (or coercible), string otherwise
	Value any

	Unit   string
	Status FieldStatus
}

// Float returns the numeric value and whether the field is numeric.
func (f DecodedField) Float() (float64, bool) {
	v, ok := f.Value.(float64)
	return v, ok
}

// DecodedFrame groups the fields produced by decoding one frame.
type DecodedFrame struct {
	Satellite string

	// FrameKind is the schema container name the fields belong to
	FrameKind string

	Timestamp time.Time
	Fields    []DecodedField
}

// Field returns the named field, if present.
func (d DecodedFrame) Field(name string) (DecodedField, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return DecodedField{}, false
}

// Map returns fields keyed by name.
func (d DecodedFrame) Map() map[string]DecodedField {
	m := make(map[string]DecodedField, len(d.Fields))
	for _, f := range d.Fields {
		m[f.Name] = f
	}
	return m
}
