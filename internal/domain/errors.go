package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the satlink domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("satlink: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("satlink: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("satlink: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("satlink: invalid configuration")

	// ErrInvalidFrame is returned when a frame violates its invariants.
	ErrInvalidFrame = errors.New("satlink: invalid frame")

	// ErrInvalidSubmission is returned when an ingestion request is rejected.
	ErrInvalidSubmission = errors.New("satlink: invalid submission")

	// ErrDecode marks a structural payload/schema mismatch. Terminal per frame.
	ErrDecode = errors.New("satlink: decode error")

	// ErrTransientStore marks a connectivity or I/O failure of a store.
	// The affected frame stays pending.
	ErrTransientStore = errors.New("satlink: transient store error")

	// ErrUnknownSatellite is returned when no decoder is registered for a satellite id.
	ErrUnknownSatellite = errors.New("satlink: unknown satellite")

	// ErrNoMatchingSatellite is returned when no registered schema claims a payload.
	ErrNoMatchingSatellite = errors.New("satlink: no matching satellite")

	// ErrFrameNotFound is returned when a frame id does not exist.
	ErrFrameNotFound = errors.New("satlink: frame not found")

	// ErrJobNotFound is returned when a job id is not scheduled.
	ErrJobNotFound = errors.New("satlink: job not found")

	// ErrJobNotPending is returned when removing a job that is already running.
	ErrJobNotPending = errors.New("satlink: job not pending")

	// ErrSchedulerStopped is returned when scheduling on a shut down scheduler.
	ErrSchedulerStopped = errors.New("satlink: scheduler stopped")
)

// DecodeError describes why a payload does not match its schema.
type DecodeError struct {
	Satellite string
	Field     string
	Offset    int
	Reason    string
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Satellite, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %q at offset %d: %s", e.Satellite, e.Field, e.Offset, e.Reason)
}

// Is makes errors.Is(err, ErrDecode) hold for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// TransientStoreError wraps a store failure that is expected to clear on retry.
type TransientStoreError struct {
	Op  string
	Err error
}

// NewTransientStoreError wraps err, returning nil when err is nil.
func NewTransientStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// Error implements error.
func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransientStore) hold for every TransientStoreError.
func (e *TransientStoreError) Is(target error) bool {
	return target == ErrTransientStore
}

// ErrUpstream matches every UpstreamError.
var ErrUpstream = errors.New("satlink: upstream fetch failed")

// UpstreamError is a failed request to the upstream telemetry service.
// Transient is set for network failures, 5xx, 408 and 429 responses.
type UpstreamError struct {
	Status    int
	Transient bool
	Err       error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUpstream) hold for every UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// IsPermanentUpstream reports whether err is an upstream failure that a retry cannot fix.
func IsPermanentUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && !ue.Transient
}
