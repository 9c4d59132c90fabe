// Package tsdb stores raw and decoded telemetry in Pebble, used as an ordered
// time-series key/value store.
//
// Keys are laid out as measurement | 8-byte big-endian timestamp | suffix so
// that a prefix scan over one measurement returns points oldest first.
package tsdb

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	jsoniter "github.com/json-iterator/go"
)

const (
	defaultCacheSizeBytes    = int64(32 << 20)
	defaultMemTableSizeBytes = uint64(16 << 20)
	defaultBloomFilterBits   = 10
)

var (
	errClosed     = errors.New("tsdb: store is closed")
	errInvalidKey = errors.New("tsdb: invalid point key")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Options controls Pebble tuning. Zero fields are replaced with defaults.
type Options struct {
	CacheSizeBytes    int64
	MemTableSizeBytes uint64
}

// DB is a Pebble database holding every bucket.
type DB struct {
	db    *pebble.DB
	cache *pebble.Cache
}

// Open opens or creates the database directory at path.
func Open(path string, opts Options) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tsdb: database path is empty")
	}
	if opts.CacheSizeBytes <= 0 {
		opts.CacheSizeBytes = defaultCacheSizeBytes
	}
	if opts.MemTableSizeBytes == 0 {
		opts.MemTableSizeBytes = defaultMemTableSizeBytes
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("tsdb: ensure directory: %w", err)
	}

	cache := pebble.NewCache(opts.CacheSizeBytes)
	pebbleOpts := &pebble.Options{
		Cache:        cache,
		MemTableSize: opts.MemTableSizeBytes,
	}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(defaultBloomFilterBits),
		FilterType:   pebble.TableFilter,
	}
	pebbleOpts.Levels = make([]pebble.LevelOptions, 7)
	for i := range pebbleOpts.Levels {
		pebbleOpts.Levels[i] = level
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("tsdb: open: %w", err)
	}
	return &DB{db: db, cache: cache}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if d.cache != nil {
		d.cache.Unref()
		d.cache = nil
	}
	return err
}

func (d *DB) handle() (*pebble.DB, error) {
	if d == nil || d.db == nil {
		return nil, errClosed
	}
	return d.db, nil
}
