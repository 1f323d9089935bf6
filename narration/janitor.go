package narration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// JanitorConfig configures the audio directory janitor.
type JanitorConfig struct {
	// Store is the audio store to keep bounded
	Store *Store

	// KeepLatest is how many files survive each sweep; must be at least 1
	KeepLatest int

	// DebounceDelay is how long to collect creates before sweeping
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Janitor watches the audio directory and prunes old files after new ones
// appear, keeping cleanup off the request path.
type Janitor struct {
	config  JanitorConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	dirtyMu sync.Mutex
	dirty   bool

	sweeps  atomic.Int64
	started atomic.Bool
	done    chan struct{}
}

// NewJanitor creates a janitor. Call Start to begin watching.
func NewJanitor(config JanitorConfig) (*Janitor, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("janitor requires a store")
	}
	if config.KeepLatest < 1 {
		return nil, fmt.Errorf("janitor keep latest must be at least 1, got %d", config.KeepLatest)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 500 * time.Millisecond
	}

	return &Janitor{
		config:  config,
		watcher: fsw,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start creates the directory if needed, sweeps once, and watches for new
// files until ctx is canceled or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	dir := j.config.Store.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	if err := j.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch audio dir: %w", err)
	}

	j.sweep()
	j.started.Store(true)
	go j.processEvents(ctx)

	j.logger.Info("Audio janitor started",
		"dir", dir,
		"keep_latest", j.config.KeepLatest,
		"debounce", j.config.DebounceDelay)
	return nil
}

// Stop stops watching.
func (j *Janitor) Stop() error {
	err := j.watcher.Close()
	if j.started.Load() {
		<-j.done
	}
	return err
}

// Sweeps returns how many cleanup passes have run.
func (j *Janitor) Sweeps() int64 {
	return j.sweeps.Load()
}

func (j *Janitor) processEvents(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-j.watcher.Events:
			if !ok {
				return
			}
			j.handleFSEvent(event)

		case err, ok := <-j.watcher.Errors:
			if !ok {
				return
			}
			j.logger.Error("Janitor watcher error", "error", err)

		case <-ticker.C:
			j.flushPending()
		}
	}
}

func (j *Janitor) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(event.Name)
	if ok, _ := doublestar.Match(j.config.Store.pattern, name); !ok {
		return
	}

	j.dirtyMu.Lock()
	j.dirty = true
	j.dirtyMu.Unlock()
}

func (j *Janitor) flushPending() {
	j.dirtyMu.Lock()
	if !j.dirty {
		j.dirtyMu.Unlock()
		return
	}
	j.dirty = false
	j.dirtyMu.Unlock()

	j.sweep()
}

func (j *Janitor) sweep() {
	removed, err := j.config.Store.Cleanup(j.config.KeepLatest)
	j.sweeps.Add(1)
	if err != nil {
		j.logger.Warn("Audio cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Debug("Audio cleanup", "removed", removed)
	}
}
