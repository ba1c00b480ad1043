// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// ErrNotDirectory is returned when the watched path is not a directory.
var ErrNotDirectory = errors.New("inbox path is not a directory")

// Handler receives the absolute path of a settled file. It runs on the
// watcher goroutine and should return quickly.
type Handler func(ctx context.Context, path string)

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch
	Dir string

	// Debounce is the quiet period before a file is handed over (default: 500ms)
	Debounce time.Duration

	// Extensions restricts handled files (e.g. ".pdf", ".png"); empty means all
	Extensions []string

	// IncludeExisting hands over files already present when Run starts
	IncludeExisting bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// withTick overrides the debounce scan interval.
func withTick(d time.Duration) Option {
	return func(w *Watcher) {
		w.tick = d
	}
}

// =============================================================================
// WATCHER
// =============================================================================

// Watcher hands settled files in a directory to a Handler.
type Watcher struct {
	dir        string
	extensions map[string]bool
	existing   bool
	handler    Handler
	logger     *zap.Logger
	tick       time.Duration
	queue      *queue
	fs         *fsnotify.Watcher
}

// New validates cfg and starts watching cfg.Dir. Events are processed by Run.
func New(cfg Config, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("inbox handler is nil")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat inbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		dir:      dir,
		existing: cfg.IncludeExisting,
		handler:  handler,
		logger:   zap.NewNop(),
		tick:     100 * time.Millisecond,
		queue:    newQueue(debounce),
	}
	if len(cfg.Extensions) > 0 {
		w.extensions = make(map[string]bool, len(cfg.Extensions))
		for _, ext := range cfg.Extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extensions[ext] = true
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tick > debounce {
		w.tick = debounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fs = fs
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes events until ctx is done, then releases the watcher.
// It returns ctx.Err() on shutdown and should be called once.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	if w.existing {
		w.seedExisting()
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	w.logger.Info("watching inbox", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// Close releases the watcher without running it.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.accepts(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.queue.forget(event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.queue.touch(event.Name, time.Now())
	}
}

func (w *Watcher) seedExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("read inbox failed", zap.Error(err))
		return
	}
	// Backdated so the first tick hands them over
	past := time.Now().Add(-w.queue.debounce)
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.accepts(path) {
			w.queue.touch(path, past)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	if w.queue.len() == 0 {
		return
	}
	for _, path := range w.queue.due(now) {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		if !w.queue.claim(path, stamp{size: info.Size(), modTime: info.ModTime()}) {
			continue
		}
		w.logger.Debug("inbox file settled", zap.String("file", filepath.Base(path)), zap.Int64("bytes", info.Size()))
		w.handler(ctx, path)
	}
}

// accepts filters hidden files, temporaries and unwanted extensions.
func (w *Watcher) accepts(path string) bool {
	name := filepath.Base(path)
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") || strings.HasSuffix(name, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".tmp", ".part", ".crdownload", ".swp":
		return false
	}
	if w.extensions != nil {
		return w.extensions[ext]
	}
	return true
}
