// Package watch reports changes to a single input file.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
)

// DefaultBatchDelay is how long the watcher waits for writes to settle.
const DefaultBatchDelay = 500 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Path is the file to watch.
	Path string

	// OnChange runs once per burst of writes to Path.
	OnChange func(path string)

	// BatchDelay defaults to DefaultBatchDelay.
	BatchDelay time.Duration

	Log *logger.Logger
}

// Watcher watches the directory of a file so that editors replacing the
// file by rename are noticed too.
type Watcher struct {
	path     string
	onChange func(string)
	delay    time.Duration
	fs       *fsnotify.Watcher
	log      *logger.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New starts watching cfg.Path. Events are buffered until Start runs.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch path is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("watch callback is required")
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}

	return &Watcher{
		path:     absPath,
		onChange: cfg.OnChange,
		delay:    cfg.BatchDelay,
		fs:       fsWatcher,
		log:      &logger.Logger{Logger: cfg.Log.With("component", "watcher")},
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start dispatches changes until ctx is done, then releases the watcher.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.stop()

	w.log.Info("Watching for changes", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		w.log.Debug("File changed", "path", w.path)
		w.onChange(w.path)
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.fs.Close()
}
