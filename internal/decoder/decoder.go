package decoder

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bft-labs/satlink/internal/domain"
)

// Decoder decodes payloads of a single satellite schema.
// A Decoder is immutable and safe for concurrent use.
type Decoder struct {
	schema Schema
	kinds  []fieldKind
	magic  [][]byte
	match  []byte
}

// New compiles a schema into a decoder.
func New(schema Schema) (*Decoder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	d := &Decoder{
		schema: schema,
		kinds:  make([]fieldKind, len(schema.Fields)),
		magic:  make([][]byte, len(schema.Fields)),
	}
	for i, f := range schema.Fields {
		kind, err := parseFieldType(f.Type, schema.ByteOrder)
		if err != nil {
			return nil, err
		}
		d.kinds[i] = kind
		if f.Contents != "" {
			d.magic[i], _ = hex.DecodeString(f.Contents)
		}
	}
	if schema.Match != "" {
		d.match, _ = hex.DecodeString(schema.Match)
	}
	return d, nil
}

// Schema returns the schema the decoder was built from.
func (d *Decoder) Schema() Schema {
	return d.schema
}

// Matches reports whether payload starts with the schema's match prefix.
// Schemas without a match prefix never claim untagged payloads.
func (d *Decoder) Matches(payload []byte) bool {
	return len(d.match) > 0 && bytes.HasPrefix(payload, d.match)
}

// Decode walks the schema fields in order and returns calibrated values.
func (d *Decoder) Decode(payload []byte) (domain.DecodedFrame, error) {
	out := domain.DecodedFrame{
		Satellite: d.schema.Satellite,
		FrameKind: d.schema.FrameKind,
		Fields:    make([]domain.DecodedField, 0, len(d.schema.Fields)),
	}

	offset := 0
	for i, f := range d.schema.Fields {
		if offset+f.Size > len(payload) {
			return domain.DecodedFrame{}, &domain.DecodeError{
				Satellite: d.schema.Satellite,
				Field:     f.Name,
				Offset:    offset,
				Reason:    fmt.Sprintf("payload too short: need %d bytes, have %d", offset+f.Size, len(payload)),
			}
		}
		raw := payload[offset : offset+f.Size]

		if m := d.magic[i]; m != nil && !bytes.Equal(raw, m) {
			return domain.DecodedFrame{}, &domain.DecodeError{
				Satellite: d.schema.Satellite,
				Field:     f.Name,
				Offset:    offset,
				Reason:    fmt.Sprintf("contents %x, want %x", raw, m),
			}
		}
		offset += f.Size

		if f.Ignore {
			continue
		}
		out.Fields = append(out.Fields, d.decodeField(f, d.kinds[i], raw))
	}

	if d.schema.StrictLength && offset != len(payload) {
		return domain.DecodedFrame{}, &domain.DecodeError{
			Satellite: d.schema.Satellite,
			Offset:    offset,
			Reason:    fmt.Sprintf("%d trailing bytes", len(payload)-offset),
		}
	}
	return out, nil
}

func (d *Decoder) decodeField(f FieldDescriptor, kind fieldKind, raw []byte) domain.DecodedField {
	field := domain.DecodedField{Name: f.Name, Unit: f.Unit, Status: domain.StatusValid}

	switch kind.base {
	case 't':
		text := strings.TrimRight(string(raw), "\x00 ")
		if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil && isFinite(v) {
			setNumber(&field, calibrate(f, v), f.Range.Check(rangeValue(f, v)))
		} else {
			field.Value = text
		}
		return field
	case 'b':
		field.Value = hex.EncodeToString(raw)
		return field
	}

	rawValue := kind.readNumber(raw)
	if label, ok := f.Lookup[int64(rawValue)]; ok && isFinite(rawValue) {
		field.Value = label
		field.Status = f.Range.Check(rawValue)
		return field
	}

	setNumber(&field, calibrate(f, rawValue), f.Range.Check(rangeValue(f, rawValue)))
	return field
}

// setNumber stores a numeric value. Non-finite values are kept as the
// strings "NaN", "+Inf" and "-Inf" so every store can encode them; NaN
// passes any range and infinities compare like any other number.
func setNumber(field *domain.DecodedField, v float64, status domain.FieldStatus) {
	field.Status = status
	if isFinite(v) {
		field.Value = v
		return
	}
	field.Value = strconv.FormatFloat(v, 'g', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// calibrate applies the polynomial, or the linear scale/offset, to a raw value.
func calibrate(f FieldDescriptor, raw float64) float64 {
	if len(f.Poly) > 0 {
		sum, pow := 0.0, 1.0
		for _, c := range f.Poly {
			sum += c * pow
			pow *= raw
		}
		return sum
	}
	scale := 1.0
	if f.Scale != nil {
		scale = *f.Scale
	}
	return raw*scale + f.Offset
}

func rangeValue(f FieldDescriptor, raw float64) float64 {
	if f.Range.UsesCalibrated() {
		return calibrate(f, raw)
	}
	return raw
}
