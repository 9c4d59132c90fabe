package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Link is the direction of a radio transmission.
type Link string

const (
	// LinkUplink is ground-to-spacecraft.
	LinkUplink Link = "uplink"

	// LinkDownlink is spacecraft-to-ground.
	LinkDownlink Link = "downlink"
)

// Links lists every link direction in a stable order.
var Links = []Link{LinkUplink, LinkDownlink}

// ParseLink converts a case-insensitive string into a Link.
func ParseLink(s string) (Link, error) {
	switch Link(strings.ToLower(strings.TrimSpace(s))) {
	case LinkUplink:
		return LinkUplink, nil
	case LinkDownlink:
		return LinkDownlink, nil
	default:
		return "", fmt.Errorf("unknown link %q", s)
	}
}

// Valid reports whether l is one of the known link directions.
func (l Link) Valid() bool {
	return l == LinkUplink || l == LinkDownlink
}

// String returns the link name.
func (l Link) String() string {
	return string(l)
}

// Frame represents a single radio transmission record.
// A frame is the atomic unit moved through the processing pipeline.
type Frame struct {
	// ID uniquely identifies the record (time-ordered UUID for table rows,
	// encoded point key for raw bucket records)
	ID string

	// Satellite is the owning satellite, empty when the submitter did not know it
	Satellite string

	// Link is the transmission direction
	Link Link

	// Timestamp is the reception instant, always UTC
	Timestamp time.Time

	// Payload is the raw frame as a hex string
	Payload string

	// Frequency is the reception frequency in Hz, if reported
	Frequency *float64

	// QoS is the reception quality indicator, if reported
	QoS *float64

	// Application tags the submitting ground station software
	Application string

	// Metadata is opaque JSON attached by the submitter
	Metadata json.RawMessage

	// Username identifies the submitter
	Username string

	// Processed is true once the frame reached a terminal state
	Processed bool

	// Invalid is nil while pending, then true (quarantined) or false (decoded)
	Invalid *bool
}

// Bytes returns the hex-decoded payload.
func (f Frame) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("frame %s: payload is not hex: %w", f.ID, err)
	}
	return b, nil
}

// Pending returns true if the frame has not reached a terminal state.
func (f Frame) Pending() bool {
	return !f.Processed
}

// Quarantined returns true if the frame was finalized as invalid.
func (f Frame) Quarantined() bool {
	return f.Processed && f.Invalid != nil && *f.Invalid
}

// Finalize moves the frame to its terminal state.
func (f *Frame) Finalize(invalid bool) {
	f.Processed = true
	f.Invalid = &invalid
}

// Validate checks the processed/invalid invariant and the required fields.
func (f Frame) Validate() error {
	if !f.Link.Valid() {
		return fmt.Errorf("%w: unknown link %q", ErrInvalidFrame, f.Link)
	}
	if f.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidFrame)
	}
	if f.Payload == "" {
		return fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	}
	if f.Processed && f.Invalid == nil {
		return fmt.Errorf("%w: processed frame without validity", ErrInvalidFrame)
	}
	if !f.Processed && f.Invalid != nil {
		return fmt.Errorf("%w: pending frame with validity set", ErrInvalidFrame)
	}
	return nil
}

// Scope selects the frames a single drain operates on.
// Zero Start/End leave the corresponding side unbounded.
type Scope struct {
	Satellite string
	Link      Link
	Start     time.Time
	End       time.Time
}

// Contains reports whether t falls inside the scope's time bounds (inclusive).
func (s Scope) Contains(t time.Time) bool {
	if !s.Start.IsZero() && t.Before(s.Start) {
		return false
	}
	if !s.End.IsZero() && t.After(s.End) {
		return false
	}
	return true
}

// String renders the scope for logs.
func (s Scope) String() string {
	sat := s.Satellite
	if sat == "" {
		sat = "*"
	}
	return sat + "/" + string(s.Link)
}
