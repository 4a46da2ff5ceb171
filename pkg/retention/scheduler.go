package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kagehq/echos-sub001/pkg/token"
)

// Config contains configuration for the retention scheduler.
type Config struct {
	// Schedule is a cron expression for pruning runs. Empty disables the
	// scheduler.
	Schedule string `yaml:"schedule"`

	// MaxAge keeps expired records around for inspection before they are
	// pruned. Revoked records are pruned on the next run regardless.
	MaxAge time.Duration `yaml:"max_age"`
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule: "@hourly",
		MaxAge:   24 * time.Hour,
	}
}

// Scheduler runs token pruning on a cron schedule.
type Scheduler struct {
	config *Config
	tokens *token.Manager
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a retention scheduler over the token manager.
func NewScheduler(config *Config, tokens *token.Manager, logger *slog.Logger) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config: config,
		tokens: tokens,
		cron:   cron.New(),
		logger: logger.With("component", "retention"),
	}
}

// Start begins scheduled pruning. An empty schedule is a no-op. The
// scheduler stops itself when ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.runPruning); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.config.Schedule,
		"max_age", s.config.MaxAge,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runPruning executes one pruning cycle.
func (s *Scheduler) runPruning() {
	cutoff := time.Now().Add(-s.config.MaxAge)
	removed := s.tokens.Prune(cutoff)

	if removed > 0 {
		s.logger.Info("pruned terminal token records",
			"removed", removed,
			"cutoff", cutoff,
		)
	} else {
		s.logger.Debug("pruning completed, no records removed")
	}
}

// Stop stops the scheduler and waits for a running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
