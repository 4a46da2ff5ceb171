package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ManagerConfig contains configuration for the template manager.
type ManagerConfig struct {
	// Path is the template directory.
	Path string

	// Watch enables hot reload on filesystem changes.
	Watch bool

	// Loader configures file loading limits.
	Loader *LoaderConfig

	// Watcher configures the filesystem watcher. Nil means defaults.
	Watcher *WatcherConfig
}

// Manager owns the template set: initial load, hot reload, and lookup.
// Reloads rebuild the whole set and swap it atomically, so in-flight
// decisions never see a partially-rebuilt template map.
type Manager struct {
	config   *ManagerConfig
	loader   *TemplateLoader
	registry *TemplateRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *TemplateWatcher
	wg      sync.WaitGroup
}

// NewManager creates a template manager for the given directory.
func NewManager(config *ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:   config,
		loader:   NewTemplateLoader(config.Loader),
		registry: NewTemplateRegistry(),
		logger:   logger.With("component", "policy.manager"),
	}
}

// Load performs the initial template load. Per-file failures are logged and
// those templates omitted; only a completely unreadable directory is fatal.
func (m *Manager) Load() error {
	return m.reload()
}

// Start begins watching the template directory when watching is enabled.
// The watcher runs in the background until the context is cancelled or Stop
// is called.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Watch {
		m.logger.Info("template watching disabled")
		return nil
	}

	watcherCfg := m.config.Watcher
	if watcherCfg == nil {
		watcherCfg = DefaultWatcherConfig(m.config.Path)
	}

	watcher, err := NewTemplateWatcher(watcherCfg, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := watcher.Watch(ctx, m.reload); err != nil {
			m.logger.Error("template watcher exited", "error", err)
		}
	}()

	return nil
}

// Stop stops the watcher and waits for the watch loop to exit.
func (m *Manager) Stop() error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher == nil {
		return nil
	}

	if err := watcher.Stop(); err != nil {
		return err
	}
	m.wg.Wait()
	return nil
}

// Get retrieves a template by id from the current set.
func (m *Manager) Get(id string) (*Template, bool) {
	return m.registry.Get(id)
}

// Has checks whether a template exists in the current set.
func (m *Manager) Has(id string) bool {
	return m.registry.Has(id)
}

// List returns all templates in the current set sorted by id.
func (m *Manager) List() []*Template {
	return m.registry.List()
}

// Count returns the number of templates in the current set.
func (m *Manager) Count() int {
	return m.registry.Count()
}

// Version returns the current template set version hash.
func (m *Manager) Version() string {
	return m.registry.Version()
}

// reload rebuilds the template set from disk and swaps it in.
func (m *Manager) reload() error {
	templates, errList, err := m.loader.LoadFromDirectory(m.config.Path)
	if err != nil {
		// Directory unreadable: keep the previous set if one exists.
		if m.registry.Count() > 0 {
			m.logger.Warn("reload failed, keeping previous template set",
				"previous_count", m.registry.Count(),
				"error", err,
			)
			return nil
		}
		return err
	}

	for _, loadErr := range errList.Errors {
		m.logger.Error("template skipped", "error", loadErr)
	}

	m.registry.Replace(templates)

	m.logger.Info("templates loaded",
		"path", m.config.Path,
		"count", len(templates),
		"skipped", len(errList.Errors),
		"version", m.registry.Version(),
	)

	return nil
}
