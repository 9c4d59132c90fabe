package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/satlink/internal/decoder"
	"github.com/bft-labs/satlink/internal/domain"
)

const testSchemaYAML = `
satellite: testsat
frame_kind: beacon
match: "a5"
strict_length: true
fields:
  - name: sync
    type: u1
    contents: "a5"
    ignore: true
  - name: counter
    type: u2
  - name: temperature
    type: s1
    unit: C
    range: {low: 10, high: 20, high_inclusive: false}
`

func testRegistry() *decoder.Registry {
	schema, err := decoder.ParseSchema([]byte(testSchemaYAML))
	if err != nil {
		panic(err)
	}
	reg, err := decoder.NewRegistry(schema)
	if err != nil {
		panic(err)
	}
	return reg
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memFrames is an in-memory ports.FrameRepository.
type memFrames struct {
	mu          sync.Mutex
	rows        map[string]domain.Frame
	pendingErr  error
	finalizeErr error
}

func newMemFrames() *memFrames {
	return &memFrames{rows: make(map[string]domain.Frame)}
}

func (m *memFrames) Create(_ context.Context, f domain.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[f.ID]; ok {
		return domain.ErrInvalidFrame
	}
	m.rows[f.ID] = f
	return nil
}

func (m *memFrames) selectRows(scope domain.Scope, limit int, keep func(domain.Frame) bool) []domain.Frame {
	var out []domain.Frame
	for _, f := range m.rows {
		if scope.Satellite != "" && f.Satellite != scope.Satellite {
			continue
		}
		if scope.Link != "" && f.Link != scope.Link {
			continue
		}
		if scope.Contains(f.Timestamp) && keep(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memFrames) Pending(_ context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	return m.selectRows(scope, limit, domain.Frame.Pending), nil
}

func (m *memFrames) Quarantined(_ context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectRows(scope, limit, domain.Frame.Quarantined), nil
}

func (m *memFrames) CountPending(_ context.Context, scope domain.Scope) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.selectRows(scope, 0, domain.Frame.Pending)), nil
}

func (m *memFrames) Finalize(_ context.Context, id string, invalid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	f, ok := m.rows[id]
	if !ok {
		return domain.ErrFrameNotFound
	}
	f.Finalize(invalid)
	m.rows[id] = f
	return nil
}

func (m *memFrames) Requeue(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[id]
	if !ok || !f.Quarantined() {
		return domain.ErrFrameNotFound
	}
	f.Processed, f.Invalid = false, nil
	m.rows[id] = f
	return nil
}

func (m *memFrames) get(id string) domain.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// memRaw is an in-memory ports.RawStore with the ±1s payload dedup rule.
type memRaw struct {
	mu       sync.Mutex
	points   []domain.Frame
	storeErr error
}

func (m *memRaw) Store(_ context.Context, satellite string, f domain.Frame) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return false, m.storeErr
	}
	for _, p := range m.points {
		d := p.Timestamp.Sub(f.Timestamp)
		if p.Satellite == satellite && p.Link == f.Link && d >= -time.Second && d <= time.Second &&
			strings.EqualFold(p.Payload, f.Payload) {
			return false, nil
		}
	}
	f.ID = satellite + "/" + f.Timestamp.Format(time.RFC3339Nano) + "/" + f.Payload
	f.Satellite = satellite
	f.Processed, f.Invalid = false, nil
	m.points = append(m.points, f)
	return true, nil
}

func (m *memRaw) scan(scope domain.Scope, limit int, keep func(domain.Frame) bool) []domain.Frame {
	var out []domain.Frame
	for _, p := range m.points {
		if p.Satellite == scope.Satellite && p.Link == scope.Link && scope.Contains(p.Timestamp) && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memRaw) Pending(_ context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan(scope, limit, domain.Frame.Pending), nil
}

func (m *memRaw) Quarantined(_ context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan(scope, limit, domain.Frame.Quarantined), nil
}

func (m *memRaw) CountPending(_ context.Context, scope domain.Scope) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scan(scope, 0, domain.Frame.Pending)), nil
}

func (m *memRaw) Finalize(_ context.Context, f domain.Frame, invalid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.points {
		if m.points[i].ID == f.ID {
			m.points[i].Finalize(invalid)
			return nil
		}
	}
	return domain.ErrFrameNotFound
}

func (m *memRaw) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

// memProcessed records decoded frames.
type memProcessed struct {
	mu      sync.Mutex
	frames  []domain.DecodedFrame
	links   []domain.Link
	failErr error
}

func (m *memProcessed) Write(_ context.Context, link domain.Link, f domain.DecodedFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	// values must survive JSON like in the pebble store
	for _, fld := range f.Fields {
		if _, err := json.Marshal(fld.Value); err != nil {
			return fmt.Errorf("encode field %s: %w", fld.Name, err)
		}
	}
	m.frames = append(m.frames, f)
	m.links = append(m.links, link)
	return nil
}

func (m *memProcessed) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

type observation struct {
	writer    string
	satellite string
	link      domain.Link
	ts        time.Time
}

// fakeTracker keeps a single in-memory range per (satellite, link).
type fakeTracker struct {
	mu           sync.Mutex
	observations []observation
	ranges       map[string]domain.TimeRange
	resets       int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{ranges: make(map[string]domain.TimeRange)}
}

func (f *fakeTracker) Observe(_ context.Context, writer, sat string, link domain.Link, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, observation{writer, sat, link, ts})
	key := sat + "/" + string(link)
	r, ok := f.ranges[key]
	if !ok {
		r = domain.TimeRange{Satellite: sat, Link: link}
	}
	f.ranges[key] = r.Observe(ts)
	return nil
}

func (f *fakeTracker) Merge(_ context.Context, sat string, link domain.Link) (domain.TimeRange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.ranges[sat+"/"+string(link)]; ok {
		return r, nil
	}
	return domain.TimeRange{Satellite: sat, Link: link}, nil
}

func (f *fakeTracker) Reset(_ context.Context, sat string, link domain.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	delete(f.ranges, sat+"/"+string(link))
	return nil
}

var errFlaky = errors.New("connection reset")
