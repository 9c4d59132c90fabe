package domain

import "time"

// RangePadding is added on both sides of every observed timestamp.
const RangePadding = time.Second

// TimeRange is the minimal closed interval covering frames that still need
// reprocessing for one (satellite, link). Start and End are either both zero
// (empty) or Start <= End.
type TimeRange struct {
	Satellite string
	Link      Link
	Start     time.Time
	End       time.Time
}

// IsEmpty returns true if the range covers nothing.
func (r TimeRange) IsEmpty() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Observe widens the range to include t padded by RangePadding.
func (r TimeRange) Observe(t time.Time) TimeRange {
	t = t.UTC()
	return r.Union(TimeRange{
		Satellite: r.Satellite,
		Link:      r.Link,
		Start:     t.Add(-RangePadding),
		End:       t.Add(RangePadding),
	})
}

// Union returns the smallest range covering both r and o.
// Union is associative and commutative; the empty range is its identity.
func (r TimeRange) Union(o TimeRange) TimeRange {
	if o.IsEmpty() {
		return r
	}
	if r.IsEmpty() {
		o.Satellite, o.Link = pick(r.Satellite, o.Satellite), pickLink(r.Link, o.Link)
		return o
	}
	out := r
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

// Reset returns the empty range for the same (satellite, link).
func (r TimeRange) Reset() TimeRange {
	return TimeRange{Satellite: r.Satellite, Link: r.Link}
}

// Valid checks the both-empty-or-ordered invariant.
func (r TimeRange) Valid() bool {
	if r.Start.IsZero() != r.End.IsZero() {
		return false
	}
	return !r.End.Before(r.Start)
}

// Scope returns the drain scope bounded by this range.
func (r TimeRange) Scope() Scope {
	return Scope{Satellite: r.Satellite, Link: r.Link, Start: r.Start, End: r.End}
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func pickLink(a, b Link) Link {
	if a != "" {
		return a
	}
	return b
}
