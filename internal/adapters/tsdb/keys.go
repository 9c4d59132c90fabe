package tsdb

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	keySep   = '|'
	tsWidth  = 8
	signFlip = uint64(1) << 63
)

// measurementPrefix returns "measurement|".
func measurementPrefix(measurement string) []byte {
	p := make([]byte, 0, len(measurement)+1)
	p = append(p, measurement...)
	return append(p, keySep)
}

// timeKey returns "measurement|ts" with the sign bit flipped so negative and
// positive nanosecond values sort correctly.
func timeKey(measurement string, ts time.Time) []byte {
	k := measurementPrefix(measurement)
	var buf [tsWidth]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts.UnixNano())^signFlip)
	return append(k, buf[:]...)
}

// pointKey returns "measurement|ts|suffix".
func pointKey(measurement string, ts time.Time, suffix []byte) []byte {
	k := timeKey(measurement, ts)
	k = append(k, keySep)
	return append(k, suffix...)
}

// splitKey returns the timestamp and suffix of a key in measurement.
func splitKey(measurement string, key []byte) (time.Time, []byte, error) {
	start := len(measurement) + 1
	if len(key) < start+tsWidth+1 || string(key[:len(measurement)]) != measurement {
		return time.Time{}, nil, errInvalidKey
	}
	n := binary.BigEndian.Uint64(key[start:start+tsWidth]) ^ signFlip
	return time.Unix(0, int64(n)).UTC(), key[start+tsWidth+1:], nil
}

// rangeOptions bounds an iterator to [start, end] within measurement.
// Zero times leave that side open to the measurement boundary.
func rangeOptions(measurement string, start, end time.Time) *pebble.IterOptions {
	prefix := measurementPrefix(measurement)
	lower := prefix
	if !start.IsZero() {
		lower = timeKey(measurement, start)
	}
	upper := prefixUpperBound(prefix)
	if !end.IsZero() {
		upper = timeKey(measurement, end.Add(time.Nanosecond))
	}
	return &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
}

func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
