package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
	"github.com/bft-labs/satlink/internal/timerange"
)

// RangeTracker records and scopes raw data awaiting reprocessing.
type RangeTracker interface {
	Observe(ctx context.Context, writer, satellite string, link domain.Link, ts time.Time) error
	Merge(ctx context.Context, satellite string, link domain.Link) (domain.TimeRange, error)
	Reset(ctx context.Context, satellite string, link domain.Link) error
}

// Source names used in logs and metrics.
const (
	SourceFrameTable = "frame_table"
	SourceRawBucket  = "raw_bucket"
)

// FrameTableSource drains the relational frame table. Finalizing a row also
// archives it in the raw bucket and widens the buffer scratch range.
type FrameTableSource struct {
	frames   ports.FrameRepository
	raw      ports.RawStore
	tracker  RangeTracker
	recorder ports.Recorder
	logger   ports.Logger
}

// NewFrameTableSource creates the frame table source.
func NewFrameTableSource(
	frames ports.FrameRepository,
	raw ports.RawStore,
	tracker RangeTracker,
	recorder ports.Recorder,
	logger ports.Logger,
) *FrameTableSource {
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &FrameTableSource{
		frames:   frames,
		raw:      raw,
		tracker:  tracker,
		recorder: recorder,
		logger:   logger,
	}
}

// Name implements Source.
func (s *FrameTableSource) Name() string { return SourceFrameTable }

// Pending implements Source.
func (s *FrameTableSource) Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	return s.frames.Pending(ctx, scope, limit)
}

// Quarantined implements Source.
func (s *FrameTableSource) Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	return s.frames.Quarantined(ctx, scope, limit)
}

// CountPending implements Source.
func (s *FrameTableSource) CountPending(ctx context.Context, scope domain.Scope) (int, error) {
	return s.frames.CountPending(ctx, scope)
}

// Finalize archives frame in the raw bucket, then marks the row. The raw write
// deduplicates, so a retry after a failed row update stores nothing twice.
func (s *FrameTableSource) Finalize(ctx context.Context, frame domain.Frame, invalid bool) error {
	if !frame.Processed {
		stored, err := s.raw.Store(ctx, frame.Satellite, frame)
		if err != nil {
			return fmt.Errorf("archive frame %s: %w", frame.ID, err)
		}
		s.recorder.RawWrite(frame.Satellite, frame.Link, stored)
		if stored && frame.Satellite != "" {
			if err := s.tracker.Observe(ctx, timerange.WriterBuffer, frame.Satellite, frame.Link, frame.Timestamp); err != nil {
				s.logger.Warn("time range update failed",
					ports.String("frame", frame.ID), ports.Err(err))
			}
		}
	}
	return s.frames.Finalize(ctx, frame.ID, invalid)
}

// RawBucketSource drains unprocessed points of the raw bucket.
type RawBucketSource struct {
	raw ports.RawStore
}

// NewRawBucketSource creates the raw bucket source.
func NewRawBucketSource(raw ports.RawStore) *RawBucketSource {
	return &RawBucketSource{raw: raw}
}

// Name implements Source.
func (s *RawBucketSource) Name() string { return SourceRawBucket }

// Pending implements Source.
func (s *RawBucketSource) Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	return s.raw.Pending(ctx, scope, limit)
}

// Quarantined implements Source.
func (s *RawBucketSource) Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	return s.raw.Quarantined(ctx, scope, limit)
}

// CountPending implements Source.
func (s *RawBucketSource) CountPending(ctx context.Context, scope domain.Scope) (int, error) {
	return s.raw.CountPending(ctx, scope)
}

// Finalize implements Source.
func (s *RawBucketSource) Finalize(ctx context.Context, frame domain.Frame, invalid bool) error {
	return s.raw.Finalize(ctx, frame, invalid)
}
