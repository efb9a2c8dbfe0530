// Package watch imports files dropped into a folder.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	// Pattern is matched against the base name, e.g. "*.csv".
	Pattern string
	// Debounce is how long a file must stay quiet before it is handled.
	Debounce time.Duration
	// Existing also handles matching files present when Run starts.
	Existing bool
}

// Watcher monitors a directory and hands settled files to a Handler.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	opts    Options
	handle  Handler
	log     *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]fileState
	wg     sync.WaitGroup
}

type fileState struct {
	modTime time.Time
	size    int64
}

// New creates a watcher for dir.
func New(dir string, opts Options, handle Handler, log *zap.Logger) (*Watcher, error) {
	if opts.Pattern == "" {
		opts.Pattern = "*.csv"
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if st, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		watcher: fsw,
		dir:     abs,
		opts:    opts,
		handle:  handle,
		log:     log,
		timers:  make(map[string]*time.Timer),
		seen:    make(map[string]fileState),
	}, nil
}

// Run watches until ctx is cancelled. Pending handlers finish before it
// returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.stopTimers()
	defer w.watcher.Close()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	w.log.Info("watching", zap.String("dir", w.dir), zap.String("pattern", w.opts.Pattern))

	if w.opts.Existing {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			return fmt.Errorf("failed to list directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && w.matches(e.Name()) {
				w.schedule(ctx, filepath.Join(w.dir, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.matches(filepath.Base(event.Name)) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) matches(name string) bool {
	ok, _ := filepath.Match(w.opts.Pattern, name)
	return ok
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.opts.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.process(ctx, path)
		}
	})
	w.timers[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}

// process hands path over unless it is unchanged since the last time.
func (w *Watcher) process(ctx context.Context, path string) {
	st, err := os.Stat(path)
	if err != nil {
		// Removed before it settled.
		return
	}
	state := fileState{modTime: st.ModTime(), size: st.Size()}

	w.mu.Lock()
	if prev, ok := w.seen[path]; ok && prev == state {
		w.mu.Unlock()
		return
	}
	w.seen[path] = state
	w.mu.Unlock()

	if err := w.handle(ctx, path); err != nil {
		w.log.Error("import failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.log.Debug("file handled", zap.String("path", path))
}
