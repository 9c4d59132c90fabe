package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/scheduler"
)

// JobSpec is a job scheduled at startup, written as
// satellite:kind[:link][@every], for example
// "testsat:raw_bucket_processing:downlink@5m".
type JobSpec struct {
	Satellite string
	Kind      string
	Link      string
	Every     time.Duration
}

// ParseJobSpec parses the textual job form.
func ParseJobSpec(s string) (JobSpec, error) {
	var j JobSpec
	body, every, recurring := strings.Cut(strings.TrimSpace(s), "@")
	if recurring {
		d, err := time.ParseDuration(every)
		if err != nil || d <= 0 {
			return j, fmt.Errorf("job %q: bad interval %q", s, every)
		}
		j.Every = d
	}

	parts := strings.Split(body, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return j, fmt.Errorf("job %q: want satellite:kind[:link][@every]", s)
	}
	kind, err := scheduler.ParseKind(parts[1])
	if err != nil {
		return j, fmt.Errorf("job %q: %w", s, err)
	}
	j.Satellite = parts[0]
	j.Kind = string(kind)
	if len(parts) == 3 {
		link, err := domain.ParseLink(parts[2])
		if err != nil {
			return j, fmt.Errorf("job %q: %w", s, err)
		}
		j.Link = string(link)
	}
	return j, nil
}

// String returns the textual job form.
func (j JobSpec) String() string {
	s := j.Satellite + ":" + j.Kind
	if j.Link != "" {
		s += ":" + j.Link
	}
	if j.Every > 0 {
		s += "@" + j.Every.String()
	}
	return s
}
