package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kagehq/echos-sub001/pkg/chaos"
	"github.com/kagehq/echos-sub001/pkg/config"
	"github.com/kagehq/echos-sub001/pkg/consent"
	"github.com/kagehq/echos-sub001/pkg/engine"
	"github.com/kagehq/echos-sub001/pkg/policy/manager"
	"github.com/kagehq/echos-sub001/pkg/policy/store"
	"github.com/kagehq/echos-sub001/pkg/retention"
	"github.com/kagehq/echos-sub001/pkg/server"
	"github.com/kagehq/echos-sub001/pkg/telemetry/logging"
	"github.com/kagehq/echos-sub001/pkg/telemetry/metrics"
	"github.com/kagehq/echos-sub001/pkg/timeline"
	"github.com/kagehq/echos-sub001/pkg/token"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the decision daemon",
	Long: `Start the decision daemon with the specified configuration.

The daemon loads policy templates, restores persisted role assignments,
and serves the decision API until interrupted.

Examples:
  # Start with default config
  echosd run

  # Start with custom config
  echosd run --config /etc/echos/config.yaml

  # Override listen address
  echosd run --listen 0.0.0.0:8077`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadRunConfig loads configuration for the daemon. A missing file at the
// default path means run on defaults; an explicitly given missing file is an
// error.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfigWithEnvOverrides(cfgFile)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger := logging.New(&cfg.Telemetry.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := os.MkdirAll(cfg.Policy.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create template directory %q: %w", cfg.Policy.Path, err)
	}

	tl := timeline.NewLog(&timeline.Config{
		Capacity:         cfg.Timeline.Capacity,
		QueryLimit:       cfg.Timeline.QueryLimit,
		SubscriberBuffer: cfg.Timeline.SubscriberBuffer,
	}, logger)

	st, err := openStore(&cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := manager.NewManager(&manager.ManagerConfig{
		Path:  cfg.Policy.Path,
		Watch: cfg.Policy.Watch,
		Watcher: &manager.WatcherConfig{
			Path:             cfg.Policy.Path,
			DebounceInterval: cfg.Policy.DebounceInterval,
			Extensions:       []string{".yaml", ".yml"},
		},
	}, logger)
	if err := mgr.Load(); err != nil {
		return fmt.Errorf("failed to load policy templates: %w", err)
	}
	if cfg.Policy.Watch {
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start template watcher: %w", err)
		}
		defer mgr.Stop()
	}

	resolver, err := manager.NewResolver(ctx, mgr, st, tl, logger)
	if err != nil {
		return fmt.Errorf("failed to restore role assignments: %w", err)
	}

	var registry *prometheus.Registry
	var m *metrics.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		m = metrics.New(&metrics.Config{
			Namespace: cfg.Telemetry.Metrics.Namespace,
			Subsystem: cfg.Telemetry.Metrics.Subsystem,
		}, registry)
		m.RecordTemplateReload(mgr.Count())
	}

	tokens := token.NewManager(&token.Config{SigningKey: cfg.Tokens.SigningKey}, tl, m, logger)
	orchestrator := consent.NewOrchestrator(&consent.Config{Deadline: cfg.Consent.Deadline}, tokens, tl, m, logger)

	eng := engine.New(&engine.Config{
		Baseline: engine.BaselinePolicy{
			Allow: cfg.Policy.Baseline.Allow,
			Ask:   cfg.Policy.Baseline.Ask,
			Block: cfg.Policy.Baseline.Block,
		},
		MatchBudget: cfg.Policy.MatchBudget,
		Chaos:       cfg.Policy.Chaos,
	}, tokens, chaos.NewInjector(logger), resolver, orchestrator, tl, m, logger)

	if cfg.Retention.Enabled {
		scheduler := retention.NewScheduler(&retention.Config{
			Schedule: cfg.Retention.Schedule,
			MaxAge:   cfg.Retention.MaxAge,
		}, tokens, logger)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	logger.Info("daemon initialized",
		"templates", mgr.Count(),
		"template_version", mgr.Version(),
		"assignments", len(resolver.Assignments()),
		"store", cfg.Store.Backend,
	)

	srv := server.New(&cfg.Server, server.Deps{
		Engine:   eng,
		Consent:  orchestrator,
		Tokens:   tokens,
		Manager:  mgr,
		Resolver: resolver,
		Timeline: tl,
		Registry: registry,
	}, logger)

	return srv.Start(ctx)
}

// openStore opens the configured role assignment backend.
func openStore(cfg *config.StoreConfig) (store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Path)
	default:
		return store.NewFileStore(cfg.Path), nil
	}
}
