package calibration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/objective"
)

const (
	defaultDebounce = 250 * time.Millisecond
	pollInterval    = 50 * time.Millisecond
)

// CandidateHandler receives each successfully parsed candidate.
type CandidateHandler func(ctx context.Context, path string, c objective.RoutingCoefficients)

// Watcher delivers candidate coefficient files dropped into a directory.
// Bursts of writes to one file are coalesced; a file is parsed once it has
// been quiet for the debounce interval.
type Watcher struct {
	dir      string
	debounce time.Duration
	handler  CandidateHandler
	log      logging.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a changed file is parsed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger attaches a logger.
func WithWatcherLogger(l logging.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher starts watching dir. Call Run to process events and Close when
// done.
func NewWatcher(dir string, handler CandidateHandler, opts ...WatcherOption) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("calibration watcher: nil handler")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("calibration watcher: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("calibration watcher: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("calibration watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("calibration watcher: watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: defaultDebounce,
		handler:  handler,
		log:      logging.Noop(),
		watcher:  fw,
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
// Candidate files already present in the directory are delivered first, in
// name order.
func (w *Watcher) Run(ctx context.Context) error {
	w.scanExisting(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.markPending(ev.Name)
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.mu.Lock()
				delete(w.pending, ev.Name)
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "calibration watcher error", logging.Err(err))

		case now := <-ticker.C:
			for _, path := range w.due(now) {
				w.deliver(ctx, path)
			}
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn(ctx, "calibration watcher scan failed", logging.String("dir", w.dir), logging.Err(err))
		return
	}
	for _, e := range entries {
		if !e.IsDir() && isCandidate(e.Name()) {
			w.deliver(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) markPending(path string) {
	if !isCandidate(path) {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// due removes and returns pending paths quiet for at least the debounce
// interval, sorted for a stable delivery order.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) deliver(ctx context.Context, path string) {
	c, err := LoadCandidate(path)
	if err != nil {
		w.log.Warn(ctx, "calibration candidate ignored", logging.String("path", path), logging.Err(err))
		return
	}
	w.log.Info(ctx, "calibration candidate loaded",
		logging.String("path", path),
		logging.String("source", c.Source),
		logging.String("version_hash", c.VersionHash),
	)
	w.handler(ctx, path, c)
}

func isCandidate(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), CandidateExt) && !strings.HasPrefix(base, ".")
}
