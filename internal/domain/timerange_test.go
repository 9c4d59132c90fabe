package domain

import (
	"testing"
	"time"
)

func TestTimeRange_ObserveEmpty(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := TimeRange{Satellite: "sat", Link: LinkDownlink}.Observe(ts)

	if !r.Start.Equal(ts.Add(-time.Second)) {
		t.Errorf("Start = %v, want %v", r.Start, ts.Add(-time.Second))
	}
	if !r.End.Equal(ts.Add(time.Second)) {
		t.Errorf("End = %v, want %v", r.End, ts.Add(time.Second))
	}
	if !r.Valid() {
		t.Error("range should be valid")
	}
}

func TestTimeRange_ObserveOrderIndependent(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1, t2, t3 := base, base.Add(10*time.Minute), base.Add(3*time.Hour)

	orders := [][]time.Time{
		{t1, t2, t3}, {t1, t3, t2}, {t2, t1, t3},
		{t2, t3, t1}, {t3, t1, t2}, {t3, t2, t1},
	}

	for _, order := range orders {
		r := TimeRange{Satellite: "sat", Link: LinkUplink}
		for _, ts := range order {
			r = r.Observe(ts)
		}
		if !r.Start.Equal(t1.Add(-time.Second)) || !r.End.Equal(t3.Add(time.Second)) {
			t.Errorf("order %v: got [%v, %v]", order, r.Start, r.End)
		}
	}
}

func TestTimeRange_UnionCommutative(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := TimeRange{Satellite: "sat", Link: LinkUplink}.Observe(base)
	b := TimeRange{Satellite: "sat", Link: LinkUplink}.Observe(base.Add(time.Hour))
	empty := TimeRange{Satellite: "sat", Link: LinkUplink}

	ab, ba := a.Union(b), b.Union(a)
	if !ab.Start.Equal(ba.Start) || !ab.End.Equal(ba.End) {
		t.Errorf("union not commutative: %v vs %v", ab, ba)
	}
	if got := a.Union(empty); got != a {
		t.Errorf("union with empty = %v, want %v", got, a)
	}
	if got := empty.Union(a); !got.Start.Equal(a.Start) || !got.End.Equal(a.End) {
		t.Errorf("empty union a = %v, want %v", got, a)
	}
}

func TestTimeRange_Reset(t *testing.T) {
	r := TimeRange{Satellite: "sat", Link: LinkUplink}.Observe(time.Now())
	r = r.Reset()
	if !r.IsEmpty() {
		t.Error("reset range should be empty")
	}
	if r.Satellite != "sat" || r.Link != LinkUplink {
		t.Errorf("reset lost identity: %+v", r)
	}
}

func TestTimeRange_Valid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		r    TimeRange
		want bool
	}{
		{"empty", TimeRange{}, true},
		{"ordered", TimeRange{Start: now, End: now.Add(time.Second)}, true},
		{"point", TimeRange{Start: now, End: now}, true},
		{"reversed", TimeRange{Start: now.Add(time.Second), End: now}, false},
		{"half open", TimeRange{Start: now}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
