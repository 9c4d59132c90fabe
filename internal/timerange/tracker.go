// Package timerange tracks, per satellite and link, the span of raw data
// that still needs reprocessing.
//
// Writers that discover new raw data record it in their own scratch range.
// Before a drain the scratch ranges are folded into the authoritative range,
// and after a drain that leaves nothing pending the authoritative range is
// reset. Data observed while a drain runs stays in scratch and is picked up by
// the next merge.
package timerange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

// Writer names.
const (
	Authoritative = ""
	WriterScraper = "scraper"
	WriterBuffer  = "buffer"
)

// Tracker reads and updates time ranges through a RangeRepository.
type Tracker struct {
	repo   ports.RangeRepository
	logger ports.Logger

	// mu serializes load-modify-save sequences within this process.
	mu sync.Mutex
}

// NewTracker creates a tracker backed by repo.
func NewTracker(repo ports.RangeRepository, logger ports.Logger) *Tracker {
	return &Tracker{repo: repo, logger: logger}
}

// Observe widens the scratch range of writer to include t.
func (t *Tracker) Observe(ctx context.Context, writer, satellite string, link domain.Link, ts time.Time) error {
	if writer == Authoritative {
		return fmt.Errorf("observe: writer name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.repo.Load(ctx, satellite, link, writer)
	if err != nil {
		return fmt.Errorf("observe %s/%s: %w", satellite, link, err)
	}
	return t.repo.Save(ctx, writer, r.Observe(ts))
}

// Merge folds every scratch range into the authoritative range, removes the
// scratch ranges and returns the result.
func (t *Tracker) Merge(ctx context.Context, satellite string, link domain.Link) (domain.TimeRange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged, writers, err := t.collect(ctx, satellite, link)
	if err != nil {
		return domain.TimeRange{}, err
	}
	if err := t.repo.Save(ctx, Authoritative, merged); err != nil {
		return domain.TimeRange{}, fmt.Errorf("merge %s/%s: %w", satellite, link, err)
	}
	for _, w := range writers {
		if err := t.repo.Delete(ctx, satellite, link, w); err != nil {
			return domain.TimeRange{}, fmt.Errorf("merge %s/%s: drop %s: %w", satellite, link, w, err)
		}
	}

	if !merged.IsEmpty() {
		t.logger.Debug("time range merged",
			ports.String("satellite", satellite),
			ports.String("link", string(link)),
			ports.Time("start", merged.Start),
			ports.Time("end", merged.End),
			ports.Int("scratch_writers", len(writers)))
	}
	return merged, nil
}

// Current returns the union of the authoritative and scratch ranges without
// modifying anything.
func (t *Tracker) Current(ctx context.Context, satellite string, link domain.Link) (domain.TimeRange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, _, err := t.collect(ctx, satellite, link)
	return r, err
}

// Reset empties the authoritative range. Scratch ranges are kept.
func (t *Tracker) Reset(ctx context.Context, satellite string, link domain.Link) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	empty := domain.TimeRange{Satellite: satellite, Link: link}
	if err := t.repo.Save(ctx, Authoritative, empty); err != nil {
		return fmt.Errorf("reset %s/%s: %w", satellite, link, err)
	}
	t.logger.Debug("time range reset",
		ports.String("satellite", satellite),
		ports.String("link", string(link)))
	return nil
}

func (t *Tracker) collect(ctx context.Context, satellite string, link domain.Link) (domain.TimeRange, []string, error) {
	merged, err := t.repo.Load(ctx, satellite, link, Authoritative)
	if err != nil {
		return domain.TimeRange{}, nil, fmt.Errorf("load %s/%s: %w", satellite, link, err)
	}
	writers, err := t.repo.Writers(ctx, satellite, link)
	if err != nil {
		return domain.TimeRange{}, nil, fmt.Errorf("list writers %s/%s: %w", satellite, link, err)
	}

	var scratch []string
	for _, w := range writers {
		if w == Authoritative {
			continue
		}
		r, err := t.repo.Load(ctx, satellite, link, w)
		if err != nil {
			return domain.TimeRange{}, nil, fmt.Errorf("load %s/%s/%s: %w", satellite, link, w, err)
		}
		merged = merged.Union(r)
		scratch = append(scratch, w)
	}
	return merged, scratch, nil
}
