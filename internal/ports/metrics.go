package ports

import (
	"time"

	"github.com/bft-labs/satlink/internal/domain"
)

// Outcome is the terminal result of processing one frame.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeDecodeError Outcome = "decode_error"
	OutcomeUnexpected  Outcome = "unexpected"
	OutcomeTransient   Outcome = "transient"
)

// Recorder receives pipeline metrics.
type Recorder interface {
	FrameProcessed(source string, link domain.Link, outcome Outcome)
	RawWrite(satellite string, link domain.Link, stored bool)
	DrainCycle(source string, link domain.Link, finalized int)
	JobFinished(kind string, err error, duration time.Duration)
}

// NopRecorder discards all metrics.
type NopRecorder struct{}

func (NopRecorder) FrameProcessed(string, domain.Link, Outcome) {}
func (NopRecorder) RawWrite(string, domain.Link, bool)          {}
func (NopRecorder) DrainCycle(string, domain.Link, int)         {}
func (NopRecorder) JobFinished(string, error, time.Duration)    {}
