package tsdb

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

// Point is one stored decoded field.
type Point struct {
	Measurement string
	Timestamp   time.Time
	Field       string
	FrameKind   string
	Value       any
	Unit        string
	Status      domain.FieldStatus
}

type fieldPoint struct {
	FrameKind string `json:"frame_kind"`
	Value     any    `json:"value"`
	Unit      string `json:"unit,omitempty"`
	Status    string `json:"status"`
}

// ProcessedBucket implements ports.ProcessedStore on top of DB.
type ProcessedBucket struct {
	db     *DB
	logger ports.Logger
}

// NewProcessedBucket returns a processed bucket view of db.
func NewProcessedBucket(db *DB, logger ports.Logger) *ProcessedBucket {
	return &ProcessedBucket{db: db, logger: logger}
}

// ProcessedMeasurement returns the measurement holding decoded fields.
func ProcessedMeasurement(satellite string, link domain.Link) string {
	return fmt.Sprintf("%s_%s", satellite, link)
}

// Write stores one point per decoded field at the frame timestamp. Writing the
// same frame twice overwrites the same keys.
func (b *ProcessedBucket) Write(ctx context.Context, link domain.Link, frame domain.DecodedFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame.Fields) == 0 {
		return nil
	}
	db, err := b.db.handle()
	if err != nil {
		return domain.NewTransientStoreError("processed write", err)
	}

	measurement := ProcessedMeasurement(frame.Satellite, link)
	batch := db.NewBatch()
	defer batch.Close()
	for _, f := range frame.Fields {
		value, err := codec.Marshal(fieldPoint{
			FrameKind: frame.FrameKind,
			Value:     storedValue(f.Value),
			Unit:      f.Unit,
			Status:    f.Status.String(),
		})
		if err != nil {
			return fmt.Errorf("tsdb: encode field %s: %w", f.Name, err)
		}
		if err := batch.Set(pointKey(measurement, frame.Timestamp, []byte(f.Name)), value, nil); err != nil {
			return domain.NewTransientStoreError("processed write", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return domain.NewTransientStoreError("processed write", err)
	}
	return nil
}

// storedValue spells non-finite floats as strings, which JSON cannot carry
// as numbers.
func storedValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v
}

// Query returns decoded points of satellite on link within [start, end],
// ordered by timestamp then field name. Zero bounds are open.
func (b *ProcessedBucket) Query(ctx context.Context, satellite string, link domain.Link, start, end time.Time) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := b.db.handle()
	if err != nil {
		return nil, domain.NewTransientStoreError("processed query", err)
	}

	measurement := ProcessedMeasurement(satellite, link)
	iter, err := db.NewIter(rangeOptions(measurement, start, end))
	if err != nil {
		return nil, domain.NewTransientStoreError("processed query", err)
	}
	defer iter.Close()

	var points []Point
	for valid := iter.First(); valid; valid = iter.Next() {
		ts, name, err := splitKey(measurement, iter.Key())
		if err != nil {
			continue
		}
		var fp fieldPoint
		if err := codec.Unmarshal(iter.Value(), &fp); err != nil {
			b.logger.Warn("skipping undecodable field point",
				ports.String("measurement", measurement), ports.Err(err))
			continue
		}
		points = append(points, Point{
			Measurement: measurement,
			Timestamp:   ts,
			Field:       string(name),
			FrameKind:   fp.FrameKind,
			Value:       fp.Value,
			Unit:        fp.Unit,
			Status:      parseStatus(fp.Status),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, domain.NewTransientStoreError("processed query", err)
	}
	return points, nil
}

func parseStatus(s string) domain.FieldStatus {
	switch s {
	case domain.StatusTooLow.String():
		return domain.StatusTooLow
	case domain.StatusTooHigh.String():
		return domain.StatusTooHigh
	default:
		return domain.StatusValid
	}
}
