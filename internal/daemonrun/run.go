package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/config"
	"transmute/internal/daemon"
	"transmute/internal/deps"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/logging"
	"transmute/internal/media/ffprobe"
	"transmute/internal/notifications"
	"transmute/internal/optimize"
	"transmute/internal/preflight"
	"transmute/internal/route"
	"transmute/internal/staging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// NewResolver builds the path resolver described by cfg over the built-in
// catalog.
func NewResolver(cfg *config.Config) *route.Resolver {
	return route.NewResolver(catalog.Default(),
		route.WithMaxHops(cfg.Routing.MaxHops),
		route.WithStrategy(route.Strategy(cfg.Routing.Strategy)),
	)
}

// NewManager wires a job manager from cfg: resolver, optimizer, ffprobe
// characteristics probe, codec backends and the staging workspace.
func NewManager(cfg *config.Config, logger *slog.Logger) *jobs.Manager {
	backend := codec.NewDefault(cfg.Tools, codec.WithLogger(logger))
	return jobs.New(NewResolver(cfg), backend,
		jobs.WithOptimizer(optimize.New(optimize.WithDefaultPreset(cfg.Optimizer.DefaultPreset))),
		jobs.WithProbe(ffprobe.NewProber(cfg.Tools.FFprobe)),
		jobs.WithWorkspace(staging.NewWorkspace(cfg.Paths.StagingDir)),
		jobs.WithOutputDir(cfg.Paths.OutputDir),
		jobs.WithLogger(logger),
		jobs.WithMaxConcurrent(cfg.Jobs.MaxConcurrent),
		jobs.WithBatchWorkers(cfg.Jobs.BatchWorkers),
	)
}

// Run starts the transmute daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := filepath.Join(cfg.Paths.StateDir, "transmute.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "history store unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on paths.state_dir"),
			logging.String(logging.FieldImpact, "finished jobs will not be recorded"),
		)
		store = nil
	}

	d, err := daemon.New(cfg, NewManager(cfg, logger), store, notifications.NewService(cfg), logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("transmute daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckTools(ctx, cfg)
	attrs := []any{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		key := strings.ToLower(strings.Join(strings.Fields(status.Name), "_"))
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
	}
	logger.Info("dependency snapshot", attrs...)

	if missing := deps.UnavailableMethods(statuses); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		logging.WarnWithContext(logger, "conversion methods unavailable", "methods_unavailable",
			logging.Any("methods", names),
			logging.String(logging.FieldErrorHint, "install the missing tools or set their paths in [tools]"),
			logging.String(logging.FieldImpact, "routes through these methods will fail"),
		)
	}
}
