// Package fs holds filesystem adapters: scraper cursors and the spool
// directory watcher.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const cursorFileName = "cursors.json"

type cursorFile struct {
	Cursors map[string]time.Time `json:"cursors"`
}

// CursorFileRepository implements ports.CursorRepository with a JSON file
// holding one cursor per satellite.
type CursorFileRepository struct {
	dir string
	mu  sync.Mutex
}

// NewCursorFileRepository stores cursors under dir.
func NewCursorFileRepository(dir string) *CursorFileRepository {
	return &CursorFileRepository{dir: dir}
}

// Load returns the cursor of satellite, zero when none was saved.
func (r *CursorFileRepository) Load(ctx context.Context, satellite string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cf, err := r.read()
	if err != nil {
		return time.Time{}, err
	}
	return cf.Cursors[satellite], nil
}

// Save persists the cursor of satellite. The file is replaced atomically by
// writing a temporary file and renaming it.
func (r *CursorFileRepository) Save(ctx context.Context, satellite string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cf, err := r.read()
	if err != nil {
		return err
	}
	cf.Cursors[satellite] = at.UTC()

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the cursor file location.
func (r *CursorFileRepository) Path() string {
	return filepath.Join(r.dir, cursorFileName)
}

func (r *CursorFileRepository) read() (cursorFile, error) {
	cf := cursorFile{Cursors: make(map[string]time.Time)}
	data, err := os.ReadFile(r.Path())
	if errors.Is(err, os.ErrNotExist) {
		return cf, nil
	}
	if err != nil {
		return cf, err
	}
	if err := json.Unmarshal(data, &cf); err != nil {
		return cf, err
	}
	if cf.Cursors == nil {
		cf.Cursors = make(map[string]time.Time)
	}
	return cf, nil
}
