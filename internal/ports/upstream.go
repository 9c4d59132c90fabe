package ports

import (
	"context"
	"time"

	"github.com/bft-labs/satlink/internal/domain"
)

// FetchWindow bounds an upstream query to (Since, Until]. A zero Until
// leaves the window open ended.
type FetchWindow struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window.
func (w FetchWindow) Contains(t time.Time) bool {
	return t.After(w.Since) && (w.Until.IsZero() || !t.After(w.Until))
}

// FrameSource is the upstream telemetry network the scraper pulls from.
type FrameSource interface {
	// Fetch returns frames for satellite inside w, oldest first. truncated
	// reports that pagination stopped before the window was exhausted.
	Fetch(ctx context.Context, satellite string, w FetchWindow) (frames []domain.Frame, truncated bool, err error)
}

// CursorRepository persists per-satellite scraper progress.
type CursorRepository interface {
	// Load returns the last scraped timestamp, zero if none was saved.
	Load(ctx context.Context, satellite string) (time.Time, error)

	// Save persists the cursor atomically.
	Save(ctx context.Context, satellite string, at time.Time) error
}
