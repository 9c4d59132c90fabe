package satlink

import (
	"github.com/bft-labs/satlink/internal/adapters/sqlite"
	"github.com/bft-labs/satlink/internal/adapters/tsdb"
	"github.com/bft-labs/satlink/internal/app"
	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/scheduler"
)

// Types shared with the internal packages.
type (
	Frame          = domain.Frame
	Link           = domain.Link
	Submission     = app.Submission
	DrainResult    = app.DrainResult
	FrameCounts    = sqlite.FrameCounts
	StoredRange    = sqlite.StoredRange
	Point          = tsdb.Point
	JobKind        = scheduler.Kind
	Trigger        = scheduler.Trigger
	Job            = scheduler.Job
	ScheduleResult = scheduler.ScheduleResult
)

const (
	LinkUplink   = domain.LinkUplink
	LinkDownlink = domain.LinkDownlink

	KindScraper             = scheduler.KindScraper
	KindBufferProcessing    = scheduler.KindBufferProcessing
	KindRawBucketProcessing = scheduler.KindRawBucketProcessing

	// AllSatellites scopes a buffer_processing job to every satellite.
	AllSatellites = app.AllSatellites

	Added         = scheduler.Added
	Rescheduled   = scheduler.Rescheduled
	AlreadyActive = scheduler.AlreadyActive
)

// OneShot fires once at the given instant; a zero instant fires immediately.
var OneShot = scheduler.OneShot

// Interval fires every period from startAt; a zero startAt starts immediately.
var Interval = scheduler.Interval

// Errors returned by the Service, checkable with errors.Is.
var (
	ErrAlreadyRunning    = domain.ErrAlreadyRunning
	ErrNotRunning        = domain.ErrNotRunning
	ErrShutdownTimeout   = domain.ErrShutdownTimeout
	ErrInvalidConfig     = domain.ErrInvalidConfig
	ErrInvalidSubmission = domain.ErrInvalidSubmission
	ErrJobNotFound       = domain.ErrJobNotFound
	ErrJobNotPending     = domain.ErrJobNotPending
)
