package tsdb

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/zeebo/xxh3"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

// UnknownSatellite names the raw bucket for frames no schema identified.
const UnknownSatellite = "unknown"

// DedupWindow is the half-width of the window searched for duplicates.
const DedupWindow = time.Second

// rawPoint is the stored value of a raw bucket entry.
type rawPoint struct {
	Payload     string          `json:"payload"`
	Hash        uint64          `json:"hash"`
	Frequency   *float64        `json:"frequency,omitempty"`
	QoS         *float64        `json:"qos,omitempty"`
	Application string          `json:"application,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Username    string          `json:"username,omitempty"`
	Source      string          `json:"source,omitempty"`
	Processed   bool            `json:"processed"`
	Invalid     *bool           `json:"invalid,omitempty"`
}

// RawBucket implements ports.RawStore on top of DB.
type RawBucket struct {
	db     *DB
	logger ports.Logger
}

// NewRawBucket returns a raw bucket view of db.
func NewRawBucket(db *DB, logger ports.Logger) *RawBucket {
	return &RawBucket{db: db, logger: logger}
}

// RawMeasurement returns the measurement holding raw frames of satellite on link.
func RawMeasurement(satellite string, link domain.Link) string {
	if satellite == "" {
		satellite = UnknownSatellite
	}
	return fmt.Sprintf("%s_%s_raw_data", satellite, link)
}

// Store writes frame to the raw bucket of satellite as unprocessed unless a
// point with the same payload exists within DedupWindow of its timestamp.
// It reports whether a point was written.
func (b *RawBucket) Store(ctx context.Context, satellite string, frame domain.Frame) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	db, err := b.db.handle()
	if err != nil {
		return false, domain.NewTransientStoreError("raw store", err)
	}

	payload := strings.ToLower(frame.Payload)
	hash := xxh3.HashString(payload)
	measurement := RawMeasurement(satellite, frame.Link)
	ts := frame.Timestamp.UTC()

	dup, err := b.findDuplicate(db, measurement, ts, payload, hash)
	if err != nil {
		return false, domain.NewTransientStoreError("raw dedup scan", err)
	}
	if dup {
		b.logger.Debug("duplicate raw frame skipped",
			ports.String("measurement", measurement),
			ports.Time("timestamp", ts))
		return false, nil
	}

	point := rawPoint{
		Payload:     payload,
		Hash:        hash,
		Frequency:   frame.Frequency,
		QoS:         frame.QoS,
		Application: frame.Application,
		Metadata:    frame.Metadata,
		Username:    frame.Username,
		Source:      frame.ID,
	}
	value, err := codec.Marshal(point)
	if err != nil {
		return false, fmt.Errorf("tsdb: encode raw point: %w", err)
	}
	if err := db.Set(pointKey(measurement, ts, hashSuffix(hash)), value, pebble.Sync); err != nil {
		return false, domain.NewTransientStoreError("raw store", err)
	}
	return true, nil
}

func (b *RawBucket) findDuplicate(db *pebble.DB, measurement string, ts time.Time, payload string, hash uint64) (bool, error) {
	iter, err := db.NewIter(rangeOptions(measurement, ts.Add(-DedupWindow), ts.Add(DedupWindow)))
	if err != nil {
		return false, err
	}
	defer iter.Close()

	want := hashSuffix(hash)
	for valid := iter.First(); valid; valid = iter.Next() {
		_, suffix, err := splitKey(measurement, iter.Key())
		if err != nil || string(suffix) != string(want) {
			continue
		}
		var existing rawPoint
		if err := codec.Unmarshal(iter.Value(), &existing); err != nil {
			b.logger.Warn("skipping undecodable raw point", ports.Err(err))
			continue
		}
		if existing.Payload == payload {
			return true, nil
		}
	}
	return false, iter.Error()
}

// Pending returns up to limit unprocessed frames within scope, oldest first.
func (b *RawBucket) Pending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	return b.scan(ctx, scope, limit, func(p rawPoint) bool { return !p.Processed })
}

// Quarantined returns up to limit processed frames marked invalid within scope.
func (b *RawBucket) Quarantined(ctx context.Context, scope domain.Scope, limit int) ([]domain.Frame, error) {
	return b.scan(ctx, scope, limit, func(p rawPoint) bool {
		return p.Processed && p.Invalid != nil && *p.Invalid
	})
}

// CountPending counts unprocessed frames within scope.
func (b *RawBucket) CountPending(ctx context.Context, scope domain.Scope) (int, error) {
	frames, err := b.scan(ctx, scope, 0, func(p rawPoint) bool { return !p.Processed })
	return len(frames), err
}

func (b *RawBucket) scan(ctx context.Context, scope domain.Scope, limit int, keep func(rawPoint) bool) ([]domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scope.Satellite == "" {
		return nil, fmt.Errorf("tsdb: raw scan requires a satellite")
	}
	db, err := b.db.handle()
	if err != nil {
		return nil, domain.NewTransientStoreError("raw scan", err)
	}

	measurement := RawMeasurement(scope.Satellite, scope.Link)
	iter, err := db.NewIter(rangeOptions(measurement, scope.Start, scope.End))
	if err != nil {
		return nil, domain.NewTransientStoreError("raw scan", err)
	}
	defer iter.Close()

	var frames []domain.Frame
	for valid := iter.First(); valid; valid = iter.Next() {
		if limit > 0 && len(frames) >= limit {
			break
		}
		ts, _, err := splitKey(measurement, iter.Key())
		if err != nil {
			continue
		}
		var p rawPoint
		if err := codec.Unmarshal(iter.Value(), &p); err != nil {
			b.logger.Warn("skipping undecodable raw point",
				ports.String("measurement", measurement), ports.Err(err))
			continue
		}
		if !keep(p) {
			continue
		}
		frames = append(frames, p.frame(scope, ts, iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, domain.NewTransientStoreError("raw scan", err)
	}
	return frames, nil
}

// Finalize marks the raw point behind frame as processed. The frame ID must
// come from Pending or Quarantined.
func (b *RawBucket) Finalize(ctx context.Context, frame domain.Frame, invalid bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := b.db.handle()
	if err != nil {
		return domain.NewTransientStoreError("raw finalize", err)
	}
	key, err := hex.DecodeString(frame.ID)
	if err != nil {
		return fmt.Errorf("%w: raw frame id %q", domain.ErrFrameNotFound, frame.ID)
	}

	value, closer, err := db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: raw frame id %q", domain.ErrFrameNotFound, frame.ID)
	}
	if err != nil {
		return domain.NewTransientStoreError("raw finalize", err)
	}
	var p rawPoint
	decodeErr := codec.Unmarshal(value, &p)
	closer.Close()
	if decodeErr != nil {
		return fmt.Errorf("tsdb: decode raw point: %w", decodeErr)
	}

	p.Processed = true
	p.Invalid = &invalid
	updated, err := codec.Marshal(p)
	if err != nil {
		return fmt.Errorf("tsdb: encode raw point: %w", err)
	}
	if err := db.Set(key, updated, pebble.Sync); err != nil {
		return domain.NewTransientStoreError("raw finalize", err)
	}
	return nil
}

func (p rawPoint) frame(scope domain.Scope, ts time.Time, key []byte) domain.Frame {
	return domain.Frame{
		ID:          hex.EncodeToString(key),
		Satellite:   scope.Satellite,
		Link:        scope.Link,
		Timestamp:   ts,
		Payload:     p.Payload,
		Frequency:   p.Frequency,
		QoS:         p.QoS,
		Application: p.Application,
		Metadata:    p.Metadata,
		Username:    p.Username,
		Processed:   p.Processed,
		Invalid:     p.Invalid,
	}
}

func hashSuffix(hash uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], hash)
	return buf[:]
}
