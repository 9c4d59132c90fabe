package decoder

import (
	"fmt"
	"sort"

	"github.com/bft-labs/satlink/internal/domain"
)

// Registry maps satellite ids to their decoders.
// The set is fixed at construction; a Registry is safe for concurrent use.
type Registry struct {
	decoders map[string]*Decoder
	order    []string
}

// NewRegistry builds a registry from the given schemas.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{decoders: make(map[string]*Decoder, len(schemas))}
	for _, s := range schemas {
		if _, dup := r.decoders[s.Satellite]; dup {
			return nil, fmt.Errorf("duplicate schema for satellite %q", s.Satellite)
		}
		d, err := New(s)
		if err != nil {
			return nil, err
		}
		r.decoders[s.Satellite] = d
		r.order = append(r.order, s.Satellite)
	}
	sort.Strings(r.order)
	return r, nil
}

// LoadRegistry builds a registry from every schema file in dir.
func LoadRegistry(dir string) (*Registry, error) {
	schemas, err := LoadSchemaDir(dir)
	if err != nil {
		return nil, err
	}
	return NewRegistry(schemas...)
}

// Satellites returns the registered satellite ids, sorted.
func (r *Registry) Satellites() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the decoder registered for satellite.
func (r *Registry) Lookup(satellite string) (*Decoder, bool) {
	d, ok := r.decoders[satellite]
	return d, ok
}

// Decode decodes payload with the schema of satellite.
func (r *Registry) Decode(satellite string, payload []byte) (domain.DecodedFrame, error) {
	d, ok := r.decoders[satellite]
	if !ok {
		return domain.DecodedFrame{}, fmt.Errorf("%w: %q", domain.ErrUnknownSatellite, satellite)
	}
	return d.Decode(payload)
}

// Identify returns the satellite whose match prefix claims payload.
// The longest matching prefix wins; equally long matches are ambiguous and
// reported as no match.
func (r *Registry) Identify(payload []byte) (string, error) {
	best, bestLen, ambiguous := "", 0, false
	for _, sat := range r.order {
		d := r.decoders[sat]
		if !d.Matches(payload) {
			continue
		}
		switch n := len(d.match); {
		case n > bestLen:
			best, bestLen, ambiguous = sat, n, false
		case n == bestLen:
			ambiguous = true
		}
	}
	if best == "" {
		return "", domain.ErrNoMatchingSatellite
	}
	if ambiguous {
		return "", fmt.Errorf("%w: payload claimed by several schemas", domain.ErrNoMatchingSatellite)
	}
	return best, nil
}
