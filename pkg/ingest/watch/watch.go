// Package watch ingests the files of a directory as they appear or change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/qagent/pkg/ingest/worker"
	"github.com/papercomputeco/qagent/pkg/logger"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Enqueuer accepts ingest jobs without blocking.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch. Subdirectories are not watched.
	Dir string

	Enqueuer Enqueuer

	// OnRemove, when set, is called with the source name of a deleted or
	// renamed file.
	OnRemove func(ctx context.Context, source string)

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher enqueues files already in Dir on start and then every created or
// written file once its writes settle.
type Watcher struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	// firing counts timer callbacks past the stopped check. Run waits for
	// them so nothing is enqueued after it returns.
	firing sync.WaitGroup
}

// New validates cfg and returns a Watcher. Call Run to start watching.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.Enqueuer == nil {
		return nil, errors.New("enqueuer is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Watcher{
		cfg:    cfg,
		logger: cfg.Logger,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Run enqueues the existing files and then watches Dir until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}

	if err := w.scan(); err != nil {
		return err
	}

	w.logger.Info("watching directory for documents", "dir", w.cfg.Dir)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("directory watcher error: %w", err)
		}
	}
}

func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.cfg.Dir, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || ignored(e.Name()) {
			continue
		}
		w.enqueue(filepath.Join(w.cfg.Dir, e.Name()))
	}
	return nil
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if ignored(name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancelTimer(event.Name)
		if w.cfg.OnRemove != nil {
			w.cfg.OnRemove(ctx, name)
		}
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
		w.debounce(event.Name)
	}
}

// debounce restarts the quiet-period timer for path.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		delete(w.timers, path)
		w.firing.Add(1)
		w.mu.Unlock()

		defer w.firing.Done()
		w.enqueue(path)
	})
}

func (w *Watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// stopTimers cancels pending timers and waits for callbacks already firing.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.firing.Wait()
}

func (w *Watcher) enqueue(path string) {
	job := worker.Job{Path: path, Name: filepath.Base(path)}
	if !w.cfg.Enqueuer.Enqueue(job) {
		w.logger.Warn("watched file dropped", "file", job.Name)
	}
}

// ignored reports whether name is a hidden, editor swap or temp file.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".tmp")
}
