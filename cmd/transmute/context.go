package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"transmute/internal/api"
	"transmute/internal/config"
	"transmute/internal/daemonrun"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/logging"
	"transmute/internal/notifications"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// logLevel is the --log-level flag or, for interactive commands, warn so
// pipeline chatter does not interleave with progress output.
func (c *commandContext) logLevel(fallback string) string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return strings.TrimSpace(*c.logLevelFlag)
	}
	return fallback
}

// cliLogger writes to stderr only; the daemon owns the log file.
func (c *commandContext) cliLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       c.logLevel("warn"),
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

// localRuntime is an in-process job manager with history recording and
// notifications attached, as the daemon would run it.
type localRuntime struct {
	manager *jobs.Manager
	store   *history.Store
	detach  []func()
}

func (c *commandContext) newLocalRuntime() (*localRuntime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.cliLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return attachRuntime(cfg, daemonrun.NewManager(cfg, logger), logger), nil
}

func attachRuntime(cfg *config.Config, manager *jobs.Manager, logger *slog.Logger) *localRuntime {
	rt := &localRuntime{manager: manager}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: history unavailable: %v\n", err)
	} else {
		rt.store = store
		rt.detach = append(rt.detach, history.Attach(manager, store, logger))
	}
	rt.detach = append(rt.detach, notifications.Forward(manager, notifications.NewService(cfg), cfg.NotificationTimeout(), logger))
	return rt
}

// close drains pending events into history before closing the store.
func (r *localRuntime) close() {
	r.manager.Close()
	for _, detach := range r.detach {
		detach()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return nil, fmt.Errorf("daemon address: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("paths.api_bind is empty; the daemon API is disabled")
	}
	return client, nil
}

func wrapAPIError(err error) error {
	if api.IsUnavailable(err) {
		return fmt.Errorf("connect to daemon: %w; start it with `transmute serve`", err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
