package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
	"github.com/bft-labs/satlink/internal/timerange"
)

// ScraperConfig tunes upstream scraping.
type ScraperConfig struct {
	// Lookback bounds the first fetch for a satellite without a cursor.
	Lookback time.Duration

	// MaxAttempts is the number of fetch attempts per upstream window.
	MaxAttempts int

	// MaxWindows bounds how far one run walks back through a truncated
	// upstream listing.
	MaxWindows int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// DefaultScraperConfig returns the standard scraper settings.
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		Lookback:       24 * time.Hour,
		MaxAttempts:    3,
		MaxWindows:     50,
		BackoffInitial: DefaultBackoffInitial,
		BackoffMax:     DefaultBackoffMax,
	}
}

// ScrapeResult summarizes one scraper run.
type ScrapeResult struct {
	Fetched    int
	Stored     int
	Duplicates int
	Cursor     time.Time

	// Truncated is set when the upstream backlog could not be walked back
	// to the cursor. Fetched frames are stored but the cursor stays put.
	Truncated bool
}

// Scraper pulls frames of a satellite from an upstream network into the raw
// bucket.
type Scraper struct {
	config   ScraperConfig
	source   ports.FrameSource
	cursors  ports.CursorRepository
	raw      ports.RawStore
	tracker  RangeTracker
	recorder ports.Recorder
	logger   ports.Logger
	now      func() time.Time
}

// NewScraper creates a scraper.
func NewScraper(
	config ScraperConfig,
	source ports.FrameSource,
	cursors ports.CursorRepository,
	raw ports.RawStore,
	tracker RangeTracker,
	recorder ports.Recorder,
	logger ports.Logger,
) *Scraper {
	def := DefaultScraperConfig()
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.MaxWindows <= 0 {
		config.MaxWindows = def.MaxWindows
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Scraper{
		config:   config,
		source:   source,
		cursors:  cursors,
		raw:      raw,
		tracker:  tracker,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run fetches frames newer than the stored cursor, writes them through the
// deduplicating raw store and advances the cursor to the newest stored frame.
func (s *Scraper) Run(ctx context.Context, satellite string) (ScrapeResult, error) {
	var res ScrapeResult

	since, err := s.cursors.Load(ctx, satellite)
	if err != nil {
		s.logger.Warn("cursor unreadable, using lookback",
			ports.String("satellite", satellite), ports.Err(err))
		since = time.Time{}
	}
	if since.IsZero() {
		since = s.now().Add(-s.config.Lookback).UTC()
	}
	res.Cursor = since

	frames, complete, err := s.collect(ctx, satellite, since)
	if err != nil {
		return res, err
	}
	res.Fetched = len(frames)
	res.Truncated = !complete

	for _, f := range frames {
		f.Satellite = satellite
		stored, err := s.raw.Store(ctx, satellite, f)
		if err != nil {
			s.saveCursor(ctx, satellite, res.Cursor, since)
			return res, fmt.Errorf("scrape %s: %w", satellite, err)
		}
		s.recorder.RawWrite(satellite, f.Link, stored)
		if stored {
			res.Stored++
			if err := s.tracker.Observe(ctx, timerange.WriterScraper, satellite, f.Link, f.Timestamp); err != nil {
				s.logger.Warn("time range update failed",
					ports.String("satellite", satellite), ports.Err(err))
			}
		} else {
			res.Duplicates++
		}
		if complete && f.Timestamp.After(res.Cursor) {
			res.Cursor = f.Timestamp
		}
	}

	s.saveCursor(ctx, satellite, res.Cursor, since)
	if res.Truncated {
		s.logger.Warn("upstream backlog not fully walked, cursor kept",
			ports.String("satellite", satellite),
			ports.Int("max_windows", s.config.MaxWindows),
			ports.Time("cursor", res.Cursor))
	}
	s.logger.Info("scrape finished",
		ports.String("satellite", satellite),
		ports.Int("fetched", res.Fetched),
		ports.Int("stored", res.Stored),
		ports.Int("duplicates", res.Duplicates),
		ports.Time("cursor", res.Cursor))
	return res, nil
}

// collect gathers every upstream frame newer than since, oldest first. A
// truncated window is followed by a narrower one ending at the oldest frame
// seen, so a listing served newest first is still covered back to since.
// complete is false when the walk stopped before reaching since.
func (s *Scraper) collect(ctx context.Context, satellite string, since time.Time) ([]domain.Frame, bool, error) {
	type frameKey struct {
		at      int64
		link    domain.Link
		payload string
	}
	bo := newBackoff(s.config.BackoffInitial, s.config.BackoffMax)
	seen := make(map[frameKey]struct{})
	var all []domain.Frame

	w := ports.FetchWindow{Since: since}
	for window := 0; window < s.config.MaxWindows; window++ {
		frames, truncated, err := s.fetch(ctx, bo, satellite, w)
		if err != nil {
			return nil, false, err
		}
		bo.Reset()

		for _, f := range frames {
			k := frameKey{f.Timestamp.UnixNano(), f.Link, f.Payload}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, f)
		}
		if !truncated {
			sortOldestFirst(all)
			return all, true, nil
		}
		if len(frames) == 0 || (!w.Until.IsZero() && !frames[0].Timestamp.Before(w.Until)) {
			break
		}
		w.Until = frames[0].Timestamp
	}
	sortOldestFirst(all)
	return all, false, nil
}

func sortOldestFirst(frames []domain.Frame) {
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Timestamp.Before(frames[j].Timestamp)
	})
}

func (s *Scraper) fetch(ctx context.Context, bo *backoff, satellite string, w ports.FetchWindow) ([]domain.Frame, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		frames, truncated, err := s.source.Fetch(ctx, satellite, w)
		if err == nil {
			return frames, truncated, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		if domain.IsPermanentUpstream(err) {
			return nil, false, fmt.Errorf("scrape %s: %w", satellite, err)
		}
		s.logger.Warn("upstream fetch failed",
			ports.String("satellite", satellite),
			ports.Int("attempt", attempt),
			ports.Err(err))
		if attempt == s.config.MaxAttempts {
			break
		}
		if err := bo.Wait(ctx); err != nil {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("scrape %s: upstream unavailable after %d attempts: %w",
		satellite, s.config.MaxAttempts, lastErr)
}

func (s *Scraper) saveCursor(ctx context.Context, satellite string, cursor, previous time.Time) {
	if !cursor.After(previous) {
		return
	}
	if err := s.cursors.Save(ctx, satellite, cursor); err != nil {
		s.logger.Error("failed to save cursor",
			ports.String("satellite", satellite), ports.Err(err))
	}
}
