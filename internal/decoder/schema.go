package decoder

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema describes the binary layout of one satellite's telemetry container.
type Schema struct {
	Satellite string `yaml:"satellite"`

	// Stream names the radio or telemetry stream the schema applies to
	Stream string `yaml:"stream"`

	// FrameKind is the container name decoded fields are grouped under
	FrameKind string `yaml:"frame_kind"`

	// Match is a hex prefix identifying payloads of this satellite
	Match string `yaml:"match"`

	// ByteOrder is the default endianness, "be" (default) or "le"
	ByteOrder string `yaml:"byte_order"`

	// StrictLength rejects payloads with trailing bytes
	StrictLength bool `yaml:"strict_length"`

	Fields []FieldDescriptor `yaml:"fields"`
}

// FieldDescriptor declares one field of a schema.
type FieldDescriptor struct {
	Name string `yaml:"name"`

	// Type is one of u1 u2 u4 u8 s1 s2 s4 s8 f4 f8 (optional be/le suffix), str or bytes
	Type string `yaml:"type"`

	// Size is the byte length of str and bytes fields
	Size int `yaml:"size"`

	// Contents is the hex magic the raw bytes must equal
	Contents string `yaml:"contents"`

	// Ignore consumes the field without emitting or checking it
	Ignore bool `yaml:"ignore"`

	Unit string `yaml:"unit"`

	Scale  *float64         `yaml:"scale"`
	Offset float64          `yaml:"offset"`
	Poly   []float64        `yaml:"poly"`
	Lookup map[int64]string `yaml:"lookup"`
	Range  *Range           `yaml:"range"`
}

// ParseSchema decodes a YAML schema document and validates it.
func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// LoadSchemaFile reads one YAML schema file.
func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, err
	}
	s, err := ParseSchema(data)
	if err != nil {
		return Schema{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// LoadSchemaDir reads every *.yaml and *.yml file in dir, sorted by name.
func LoadSchemaDir(dir string) ([]Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	schemas := make([]Schema, 0, len(names))
	for _, name := range names {
		s, err := LoadSchemaFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

// Validate checks the schema for structural errors.
func (s *Schema) Validate() error {
	if s.Satellite == "" {
		return fmt.Errorf("schema: satellite is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields", s.Satellite)
	}
	if s.FrameKind == "" {
		s.FrameKind = s.Stream
	}
	if s.FrameKind == "" {
		s.FrameKind = "frame"
	}
	switch s.ByteOrder {
	case "", "be", "le":
	default:
		return fmt.Errorf("schema %s: unknown byte_order %q", s.Satellite, s.ByteOrder)
	}
	if s.Match != "" {
		if _, err := hex.DecodeString(s.Match); err != nil {
			return fmt.Errorf("schema %s: match is not hex: %w", s.Satellite, err)
		}
	}

	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("schema %s: field %d has no name", s.Satellite, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %q", s.Satellite, f.Name)
		}
		seen[f.Name] = true

		if err := f.validate(s.ByteOrder); err != nil {
			return fmt.Errorf("schema %s: field %q: %w", s.Satellite, f.Name, err)
		}
	}
	return nil
}

func (f *FieldDescriptor) validate(defaultOrder string) error {
	var contents []byte
	if f.Contents != "" {
		b, err := hex.DecodeString(f.Contents)
		if err != nil {
			return fmt.Errorf("contents is not hex: %w", err)
		}
		contents = b
	}

	kind, err := parseFieldType(f.Type, defaultOrder)
	if err != nil {
		return err
	}
	if kind.variable {
		if f.Size == 0 {
			f.Size = len(contents)
		}
		if f.Size <= 0 {
			return fmt.Errorf("%s requires a positive size", f.Type)
		}
	} else {
		f.Size = kind.width
	}
	if contents != nil && len(contents) != f.Size {
		return fmt.Errorf("contents is %d bytes, field is %d", len(contents), f.Size)
	}
	if f.Range != nil && f.Range.Low != nil && f.Range.High != nil && *f.Range.Low > *f.Range.High {
		return fmt.Errorf("range low %v above high %v", *f.Range.Low, *f.Range.High)
	}
	return nil
}
