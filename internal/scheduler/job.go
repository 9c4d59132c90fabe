// Package scheduler runs recurring and one-shot jobs on a single worker,
// never starting a second instance of a job id while one is queued or running.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
)

// Kind is the kind of work a job performs.
type Kind string

const (
	KindScraper             Kind = "scraper"
	KindBufferProcessing    Kind = "buffer_processing"
	KindRawBucketProcessing Kind = "raw_bucket_processing"
)

// Kinds lists every job kind.
var Kinds = []Kind{KindScraper, KindBufferProcessing, KindRawBucketProcessing}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// JobID builds the job identifier satellite_kind[_link].
func JobID(satellite string, kind Kind, link domain.Link) string {
	id := satellite + "_" + string(kind)
	if link != "" {
		id += "_" + string(link)
	}
	return id
}

// Trigger decides when a job fires. A zero Every makes it a one-shot trigger.
type Trigger struct {
	At      time.Time
	Every   time.Duration
	StartAt time.Time
}

// OneShot fires once at at. A past or zero instant fires immediately.
func OneShot(at time.Time) Trigger {
	return Trigger{At: at}
}

// Interval fires every period starting at startAt. A zero startAt starts
// immediately.
func Interval(every time.Duration, startAt time.Time) Trigger {
	return Trigger{Every: every, StartAt: startAt}
}

// IsInterval reports whether the trigger recurs.
func (t Trigger) IsInterval() bool {
	return t.Every > 0
}

// Equal reports whether both triggers fire on the same schedule.
func (t Trigger) Equal(o Trigger) bool {
	return t.At.Equal(o.At) && t.Every == o.Every && t.StartAt.Equal(o.StartAt)
}

// String renders the trigger for logs.
func (t Trigger) String() string {
	if t.IsInterval() {
		if t.StartAt.IsZero() {
			return "every " + t.Every.String()
		}
		return fmt.Sprintf("every %s from %s", t.Every, t.StartAt.UTC().Format(time.RFC3339))
	}
	if t.At.IsZero() {
		return "once now"
	}
	return "once at " + t.At.UTC().Format(time.RFC3339)
}

func (t Trigger) validate() error {
	if t.Every < 0 {
		return fmt.Errorf("negative interval %s", t.Every)
	}
	if !t.IsInterval() && !t.StartAt.IsZero() {
		return fmt.Errorf("start time requires an interval")
	}
	return nil
}

// first returns the first fire time of a trigger armed at now, using anchor
// as the interval origin.
func (t Trigger) first(anchor, now time.Time) time.Time {
	if !t.IsInterval() {
		if t.At.After(now) {
			return t.At
		}
		return now
	}
	if !anchor.Before(now) {
		return anchor
	}
	return t.after(anchor, now)
}

// after returns the first anchor + k*Every strictly later than now. Firings
// missed while a job was running are coalesced into this single fire.
func (t Trigger) after(anchor, now time.Time) time.Time {
	if anchor.After(now) {
		return anchor
	}
	k := now.Sub(anchor)/t.Every + 1
	return anchor.Add(k * t.Every)
}

// State is the lifecycle state of a scheduled job.
type State int

const (
	// StatePending waits for its trigger.
	StatePending State = iota

	// StateRunning is submitted to the worker, queued or executing.
	StateRunning
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// ScheduleResult reports what Schedule did.
type ScheduleResult int

const (
	// Added created a new job.
	Added ScheduleResult = iota

	// Rescheduled replaced the trigger of a pending job.
	Rescheduled

	// AlreadyActive left an existing job untouched.
	AlreadyActive
)

// String returns a human-readable representation of the result.
func (r ScheduleResult) String() string {
	switch r {
	case Added:
		return "added"
	case Rescheduled:
		return "rescheduled"
	case AlreadyActive:
		return "already active"
	default:
		return "unknown"
	}
}

// Job is a point-in-time view of a scheduled job.
type Job struct {
	ID      string
	Trigger Trigger
	State   State
	NextRun time.Time
	Runs    int
	LastErr error
}
