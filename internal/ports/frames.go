package ports

import (
	"context"

	"github.com/bft-labs/satlink/internal/domain"
)

// FrameRepository is the relational frame table.
// The pipeline reads rows and writes back only processed/invalid; it never deletes.
type FrameRepository interface {
	// Create inserts a new pending frame row.
	Create(ctx context.Context, frame domain.Frame) error

	// Pending returns up to limit frames with processed=false in scope,
	// ordered by timestamp ascending.
	Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error)

	// Quarantined returns up to limit frames with processed=true, invalid=true,
	// ordered by timestamp ascending.
	Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error)

	// Finalize sets processed=true and the given validity.
	Finalize(ctx context.Context, id string, invalid bool) error

	// Requeue returns a quarantined frame to the pending set.
	Requeue(ctx context.Context, id string) error

	// CountPending returns the number of pending frames in scope.
	CountPending(ctx context.Context, scope domain.Scope) (int, error)
}

// RawStore is the raw time-series bucket.
type RawStore interface {
	// Store writes the frame with processed=false unless a record with the same
	// payload exists within ±1s of its timestamp. Returns whether it was written.
	Store(ctx context.Context, satellite string, frame domain.Frame) (bool, error)

	// Pending returns up to limit raw records with processed=false in scope,
	// ordered by timestamp ascending. Frame.ID carries the point key.
	Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error)

	// Quarantined returns up to limit raw records marked invalid in scope.
	Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error)

	// Finalize marks the raw record identified by frame.ID as processed.
	Finalize(ctx context.Context, frame domain.Frame, invalid bool) error

	// CountPending returns the number of unprocessed raw records in scope.
	CountPending(ctx context.Context, scope domain.Scope) (int, error)
}

// ProcessedStore receives decoded fields, one point per field at the frame timestamp.
type ProcessedStore interface {
	Write(ctx context.Context, link domain.Link, frame domain.DecodedFrame) error
}

// RangeRepository persists time ranges.
// The empty writer name holds the authoritative range; other writers hold scratch ranges.
type RangeRepository interface {
	Load(ctx context.Context, satellite string, link domain.Link, writer string) (domain.TimeRange, error)
	Save(ctx context.Context, writer string, r domain.TimeRange) error
	Delete(ctx context.Context, satellite string, link domain.Link, writer string) error
	Writers(ctx context.Context, satellite string, link domain.Link) ([]string, error)
}
