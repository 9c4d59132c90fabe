package tsdb

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/satlink/internal/adapters/log"
	"github.com/bft-labs/satlink/internal/domain"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), Options{CacheSizeBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func rawFrame(payload string, ts time.Time) domain.Frame {
	return domain.Frame{
		ID:        "row-1",
		Link:      domain.LinkDownlink,
		Timestamp: ts,
		Payload:   payload,
		Username:  "station-7",
	}
}

func TestKeyOrderingAndSplit(t *testing.T) {
	early := pointKey("m", base.Add(-time.Hour), []byte("a"))
	late := pointKey("m", base, []byte("a"))
	assert.Less(t, string(early), string(late))

	neg := pointKey("m", time.Unix(0, -5), nil)
	pos := pointKey("m", time.Unix(0, 5), nil)
	assert.Less(t, string(neg), string(pos))

	ts, suffix, err := splitKey("m", pointKey("m", base, []byte("battery")))
	require.NoError(t, err)
	assert.True(t, ts.Equal(base))
	assert.Equal(t, "battery", string(suffix))

	_, _, err = splitKey("other", late)
	assert.ErrorIs(t, err, errInvalidKey)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("ab"), prefixUpperBound([]byte("aa")))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xFF}))
	assert.Nil(t, prefixUpperBound([]byte{0xFF, 0xFF}))
	assert.Nil(t, prefixUpperBound(nil))
}

func TestRawStoreDeduplicatesWithinWindow(t *testing.T) {
	ctx := context.Background()
	bucket := NewRawBucket(openTestDB(t), log.NewNoopLogger())

	stored, err := bucket.Store(ctx, "testsat", rawFrame("A5010203", base))
	require.NoError(t, err)
	assert.True(t, stored)

	tests := []struct {
		name    string
		payload string
		offset  time.Duration
		want    bool
	}{
		{"same instant", "a5010203", 0, false},
		{"half second later", "a5010203", 500 * time.Millisecond, false},
		{"exactly one second earlier", "a5010203", -time.Second, false},
		{"different payload", "a5010204", 0, true},
		{"outside window", "a5010203", 1500 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := bucket.Store(ctx, "testsat", rawFrame(tt.payload, base.Add(tt.offset)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored)
		})
	}

	n, err := bucket.CountPending(ctx, domain.Scope{Satellite: "testsat", Link: domain.LinkDownlink})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRawStoreSeparatesSatellitesAndLinks(t *testing.T) {
	ctx := context.Background()
	bucket := NewRawBucket(openTestDB(t), log.NewNoopLogger())

	f := rawFrame("c0de", base)
	stored, err := bucket.Store(ctx, "testsat", f)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = bucket.Store(ctx, "othersat", f)
	require.NoError(t, err)
	assert.True(t, stored)

	f.Link = domain.LinkUplink
	stored, err = bucket.Store(ctx, "testsat", f)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = bucket.Store(ctx, "", f)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, "unknown_uplink_raw_data", RawMeasurement("", domain.LinkUplink))
}

func TestRawPendingFinalizeAndQuarantine(t *testing.T) {
	ctx := context.Background()
	bucket := NewRawBucket(openTestDB(t), log.NewNoopLogger())
	scope := domain.Scope{Satellite: "testsat", Link: domain.LinkDownlink}

	for i, p := range []string{"a1", "a2", "a3"} {
		_, err := bucket.Store(ctx, "testsat", rawFrame(p, base.Add(time.Duration(2-i)*10*time.Second)))
		require.NoError(t, err)
	}

	pending, err := bucket.Pending(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "a3", pending[0].Payload)
	assert.Equal(t, "a1", pending[2].Payload)
	assert.Equal(t, "testsat", pending[0].Satellite)
	assert.Equal(t, "station-7", pending[0].Username)
	assert.True(t, pending[0].Pending())

	limited, err := bucket.Pending(ctx, scope, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	bounded, err := bucket.Pending(ctx, domain.Scope{
		Satellite: "testsat", Link: domain.LinkDownlink,
		Start: base.Add(5 * time.Second), End: base.Add(20 * time.Second),
	}, 10)
	require.NoError(t, err)
	require.Len(t, bounded, 2)
	assert.Equal(t, "a2", bounded[0].Payload)

	require.NoError(t, bucket.Finalize(ctx, pending[0], false))
	require.NoError(t, bucket.Finalize(ctx, pending[1], true))

	n, err := bucket.CountPending(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	quarantined, err := bucket.Quarantined(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Equal(t, "a2", quarantined[0].Payload)
	assert.True(t, quarantined[0].Quarantined())
}

func TestRawFinalizeUnknownID(t *testing.T) {
	ctx := context.Background()
	bucket := NewRawBucket(openTestDB(t), log.NewNoopLogger())

	err := bucket.Finalize(ctx, domain.Frame{ID: "not-hex"}, false)
	assert.ErrorIs(t, err, domain.ErrFrameNotFound)

	err = bucket.Finalize(ctx, domain.Frame{ID: "abcd"}, false)
	assert.ErrorIs(t, err, domain.ErrFrameNotFound)
}

func TestRawScanRequiresSatellite(t *testing.T) {
	bucket := NewRawBucket(openTestDB(t), log.NewNoopLogger())
	_, err := bucket.Pending(context.Background(), domain.Scope{Link: domain.LinkUplink}, 10)
	assert.Error(t, err)
}

func TestClosedStoreIsTransient(t *testing.T) {
	db, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	bucket := NewRawBucket(db, log.NewNoopLogger())
	_, err = bucket.Store(context.Background(), "testsat", rawFrame("a1", base))
	assert.ErrorIs(t, err, domain.ErrTransientStore)

	processed := NewProcessedBucket(db, log.NewNoopLogger())
	err = processed.Write(context.Background(), domain.LinkUplink, domain.DecodedFrame{
		Satellite: "testsat",
		Timestamp: base,
		Fields:    []domain.DecodedField{{Name: "x", Value: 1.0}},
	})
	assert.ErrorIs(t, err, domain.ErrTransientStore)
}

func TestProcessedWriteAndQuery(t *testing.T) {
	ctx := context.Background()
	bucket := NewProcessedBucket(openTestDB(t), log.NewNoopLogger())

	frame := domain.DecodedFrame{
		Satellite: "testsat",
		FrameKind: "beacon",
		Timestamp: base,
		Fields: []domain.DecodedField{
			{Name: "temperature", Value: 25.0, Unit: "C", Status: domain.StatusTooHigh},
			{Name: "mode", Value: "nominal"},
		},
	}
	require.NoError(t, bucket.Write(ctx, domain.LinkDownlink, frame))
	require.NoError(t, bucket.Write(ctx, domain.LinkDownlink, frame))

	points, err := bucket.Query(ctx, "testsat", domain.LinkDownlink, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "testsat_downlink", points[0].Measurement)
	assert.Equal(t, "mode", points[0].Field)
	assert.Equal(t, "nominal", points[0].Value)
	assert.Equal(t, "temperature", points[1].Field)
	assert.Equal(t, 25.0, points[1].Value)
	assert.Equal(t, domain.StatusTooHigh, points[1].Status)
	assert.Equal(t, "beacon", points[1].FrameKind)
	assert.True(t, points[1].Timestamp.Equal(base))

	none, err := bucket.Query(ctx, "testsat", domain.LinkUplink, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)

	later, err := bucket.Query(ctx, "testsat", domain.LinkDownlink, base.Add(time.Second), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestProcessedWriteNonFiniteValues(t *testing.T) {
	ctx := context.Background()
	bucket := NewProcessedBucket(openTestDB(t), log.NewNoopLogger())

	frame := domain.DecodedFrame{
		Satellite: "floatsat",
		FrameKind: "beacon",
		Timestamp: base,
		Fields: []domain.DecodedField{
			{Name: "a_nan", Value: math.NaN()},
			{Name: "b_inf", Value: math.Inf(1), Status: domain.StatusTooHigh},
			{Name: "c_ninf", Value: math.Inf(-1), Status: domain.StatusTooLow},
		},
	}
	require.NoError(t, bucket.Write(ctx, domain.LinkDownlink, frame))

	points, err := bucket.Query(ctx, "floatsat", domain.LinkDownlink, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "NaN", points[0].Value)
	assert.Equal(t, "+Inf", points[1].Value)
	assert.Equal(t, domain.StatusTooHigh, points[1].Status)
	assert.Equal(t, "-Inf", points[2].Value)
}
