package manager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TemplateWatcher watches the template directory and triggers reloads on
// create, modify, and delete events. Rapid event bursts are debounced so a
// multi-file sync produces one reload.
type TemplateWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	config   *WatcherConfig
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherConfig contains configuration for the template watcher.
type WatcherConfig struct {
	// Path is the template directory to watch
	Path string

	// DebounceInterval is the quiet period required before a reload fires
	// (default: 100ms)
	DebounceInterval time.Duration

	// Extensions is the list of file extensions that trigger reloads
	Extensions []string
}

// DefaultWatcherConfig returns the default watcher configuration.
func DefaultWatcherConfig(path string) *WatcherConfig {
	return &WatcherConfig{
		Path:             path,
		DebounceInterval: 100 * time.Millisecond,
		Extensions:       []string{".yaml", ".yml"},
	}
}

// NewTemplateWatcher creates a new template watcher.
func NewTemplateWatcher(config *WatcherConfig, logger *slog.Logger) (*TemplateWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &TemplateWatcher{
		watcher:  watcher,
		logger:   logger.With("component", "policy.watcher"),
		config:   config,
		debounce: NewDebouncer(config.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing filesystem events until the context is cancelled or
// Stop is called. Each debounced change invokes onReload; reload failures are
// logged and watching continues.
func (tw *TemplateWatcher) Watch(ctx context.Context, onReload func() error) error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	tw.running = true
	tw.mu.Unlock()

	defer func() {
		tw.mu.Lock()
		tw.running = false
		tw.mu.Unlock()
		close(tw.doneCh)
	}()

	if err := tw.watcher.Add(tw.config.Path); err != nil {
		return fmt.Errorf("failed to watch template directory: %w", err)
	}

	tw.logger.Info("template watcher started",
		"path", tw.config.Path,
		"debounce_ms", tw.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			tw.logger.Info("template watcher stopped (context cancelled)")
			return nil

		case <-tw.stopCh:
			tw.logger.Info("template watcher stopped")
			return nil

		case event, ok := <-tw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			if !tw.shouldProcessEvent(event) {
				continue
			}

			tw.logger.Debug("template file event",
				"path", event.Name,
				"op", event.Op.String(),
			)

			tw.debounce.Trigger(func() {
				tw.logger.Info("reloading templates",
					"path", event.Name,
					"op", event.Op.String(),
				)
				if err := onReload(); err != nil {
					tw.logger.Error("template reload failed", "error", err)
				}
			})

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite transient errors.
			tw.logger.Error("template watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and waits for the event loop to exit.
func (tw *TemplateWatcher) Stop() error {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.mu.Unlock()

	close(tw.stopCh)
	<-tw.doneCh

	tw.debounce.Stop()

	if err := tw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// shouldProcessEvent filters out events that cannot change the template set.
func (tw *TemplateWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}

	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, validExt := range tw.config.Extensions {
		if ext == strings.ToLower(validExt) {
			return true
		}
	}
	return false
}

// Debouncer collapses rapid event bursts into a single callback after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopCh   chan struct{}
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Trigger arms the debouncer; the most recent callback fires once the quiet
// period elapses without another trigger.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
			d.mu.Lock()
			cb := d.callback
			d.mu.Unlock()

			if cb != nil {
				cb()
			}
		}
	})
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	close(d.stopCh)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
