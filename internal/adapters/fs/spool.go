package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

// Spool subdirectories.
const (
	DoneDir     = "done"
	RejectedDir = "rejected"
)

// SpoolHandler consumes the content of one spool file. Errors matching
// domain.ErrInvalidSubmission or domain.ErrInvalidFrame reject the file;
// any other error leaves it in place for a later attempt.
type SpoolHandler func(ctx context.Context, name string, data []byte) error

// SpoolConfig configures the spool watcher.
type SpoolConfig struct {
	Dir string

	// DebounceDelay waits for writers to finish a file before reading it.
	DebounceDelay time.Duration

	// RescanInterval retries files left behind by failed attempts.
	RescanInterval time.Duration
}

// SpoolWatcher submits JSON files dropped into a directory and moves them to
// done/ or rejected/.
type SpoolWatcher struct {
	config  SpoolConfig
	handler SpoolHandler
	logger  ports.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	// procMu serializes file handling between scans and debounced events.
	procMu sync.Mutex
}

// NewSpoolWatcher creates a watcher over config.Dir.
func NewSpoolWatcher(config SpoolConfig, handler SpoolHandler, logger ports.Logger) *SpoolWatcher {
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = 100 * time.Millisecond
	}
	if config.RescanInterval <= 0 {
		config.RescanInterval = 30 * time.Second
	}
	return &SpoolWatcher{
		config:  config,
		handler: handler,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches the spool directory until ctx is done.
func (w *SpoolWatcher) Run(ctx context.Context) error {
	for _, d := range []string{w.config.Dir, w.doneDir(), w.rejectedDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("spool: ensure %s: %w", d, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("spool: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("spool: watch %s: %w", w.config.Dir, err)
	}
	w.logger.Info("spool watcher started", ports.String("dir", w.config.Dir))

	w.Scan(ctx)

	rescan := time.NewTicker(w.config.RescanInterval)
	defer rescan.Stop()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if isSpoolFile(event.Name) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("spool watcher error", ports.Err(err))
		case <-rescan.C:
			w.Scan(ctx)
		}
	}
}

// Scan processes every spool file currently in the directory, oldest name
// first.
func (w *SpoolWatcher) Scan(ctx context.Context) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		w.logger.Warn("spool scan failed", ports.Err(err))
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSpoolFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, filepath.Join(w.config.Dir, name))
	}
}

// schedule debounces events for path.
func (w *SpoolWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.config.DebounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.process(ctx, path)
	})
}

func (w *SpoolWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// process hands one file to the handler and files it away.
func (w *SpoolWatcher) process(ctx context.Context, path string) {
	w.procMu.Lock()
	defer w.procMu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		w.logger.Warn("spool read failed", ports.String("file", path), ports.Err(err))
		return
	}

	name := filepath.Base(path)
	err = w.handler(ctx, name, data)
	switch {
	case err == nil:
		w.move(path, w.doneDir())
		w.logger.Debug("spool file ingested", ports.String("file", name))
	case errors.Is(err, domain.ErrInvalidSubmission) || errors.Is(err, domain.ErrInvalidFrame):
		w.move(path, w.rejectedDir())
		w.logger.Warn("spool file rejected", ports.String("file", name), ports.Err(err))
	default:
		w.logger.Warn("spool file left for retry", ports.String("file", name), ports.Err(err))
	}
}

func (w *SpoolWatcher) move(path, dir string) {
	target := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Error("spool move failed",
			ports.String("file", path),
			ports.String("target", target),
			ports.Err(err))
	}
}

func (w *SpoolWatcher) doneDir() string     { return filepath.Join(w.config.Dir, DoneDir) }
func (w *SpoolWatcher) rejectedDir() string { return filepath.Join(w.config.Dir, RejectedDir) }

func isSpoolFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}
