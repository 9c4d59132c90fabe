package decoder

import (
	"testing"

	"github.com/bft-labs/satlink/internal/domain"
)

func f64(v float64) *float64 { return &v }
func bptr(v bool) *bool      { return &v }

func TestRange_InclusiveLowExclusiveHigh(t *testing.T) {
	r := &Range{Low: f64(10), High: f64(20), LowInclusive: bptr(true), HighInclusive: bptr(false)}

	tests := []struct {
		value float64
		want  domain.FieldStatus
	}{
		{10, domain.StatusValid},
		{15, domain.StatusValid},
		{19.999, domain.StatusValid},
		{20, domain.StatusTooHigh},
		{9.999, domain.StatusTooLow},
		{25, domain.StatusTooHigh},
	}
	for _, tt := range tests {
		if got := r.Check(tt.value); got != tt.want {
			t.Errorf("Check(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestRange_ExclusiveLowInclusiveHigh(t *testing.T) {
	r := &Range{Low: f64(0), High: f64(1), LowInclusive: bptr(false)}

	tests := []struct {
		value float64
		want  domain.FieldStatus
	}{
		{0, domain.StatusTooLow},
		{-1, domain.StatusTooLow},
		{0.5, domain.StatusValid},
		{1, domain.StatusValid},
		{1.0001, domain.StatusTooHigh},
	}
	for _, tt := range tests {
		if got := r.Check(tt.value); got != tt.want {
			t.Errorf("Check(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestRange_OpenBounds(t *testing.T) {
	var none *Range
	if got := none.Check(1e9); got != domain.StatusValid {
		t.Errorf("nil range = %v, want Valid", got)
	}

	lowOnly := &Range{Low: f64(5)}
	if got := lowOnly.Check(1e9); got != domain.StatusValid {
		t.Errorf("low-only range, high value = %v, want Valid", got)
	}
	if got := lowOnly.Check(4); got != domain.StatusTooLow {
		t.Errorf("low-only range, low value = %v, want TooLow", got)
	}

	highOnly := &Range{High: f64(5), HighInclusive: bptr(false)}
	if got := highOnly.Check(-1e9); got != domain.StatusValid {
		t.Errorf("high-only range, low value = %v, want Valid", got)
	}
	if got := highOnly.Check(5); got != domain.StatusTooHigh {
		t.Errorf("high-only range, bound = %v, want TooHigh", got)
	}
}
