package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		in      string
		want    Link
		wantErr bool
	}{
		{"uplink", LinkUplink, false},
		{"Downlink", LinkDownlink, false},
		{" DOWNLINK ", LinkDownlink, false},
		{"sideways", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLink(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLink(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFrame_FinalizeKeepsInvariant(t *testing.T) {
	f := Frame{Link: LinkDownlink, Timestamp: time.Now(), Payload: "ab"}
	if err := f.Validate(); err != nil {
		t.Fatalf("pending frame invalid: %v", err)
	}

	f.Finalize(true)
	if err := f.Validate(); err != nil {
		t.Fatalf("finalized frame invalid: %v", err)
	}
	if !f.Quarantined() {
		t.Error("frame should be quarantined")
	}

	f.Finalize(false)
	if f.Quarantined() || f.Pending() {
		t.Error("frame should be processed and valid")
	}
}

func TestFrame_ValidateRejectsBrokenInvariant(t *testing.T) {
	invalid := true
	tests := []struct {
		name  string
		frame Frame
	}{
		{"processed without validity", Frame{Link: LinkUplink, Timestamp: time.Now(), Payload: "00", Processed: true}},
		{"pending with validity", Frame{Link: LinkUplink, Timestamp: time.Now(), Payload: "00", Invalid: &invalid}},
		{"no link", Frame{Timestamp: time.Now(), Payload: "00"}},
		{"no timestamp", Frame{Link: LinkUplink, Payload: "00"}},
		{"no payload", Frame{Link: LinkUplink, Timestamp: time.Now()}},
	}
	for _, tt := range tests {
		if err := tt.frame.Validate(); !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("%s: Validate() = %v, want ErrInvalidFrame", tt.name, err)
		}
	}
}

func TestDecodeError_Is(t *testing.T) {
	var err error = &DecodeError{Satellite: "sat", Field: "sync", Offset: 0, Reason: "mismatch"}
	if !errors.Is(err, ErrDecode) {
		t.Error("DecodeError should match ErrDecode")
	}
	if errors.Is(err, ErrTransientStore) {
		t.Error("DecodeError should not match ErrTransientStore")
	}
}

func TestTransientStoreError(t *testing.T) {
	cause := errors.New("disk gone")
	err := NewTransientStoreError("raw write", cause)
	if !errors.Is(err, ErrTransientStore) {
		t.Error("should match ErrTransientStore")
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to cause")
	}
	if NewTransientStoreError("noop", nil) != nil {
		t.Error("nil cause should produce nil error")
	}
}
