package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRouting(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateOptimizer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if !strings.Contains(c.Paths.APIBind, ":") {
		return fmt.Errorf("paths.api_bind must be host:port, got %q", c.Paths.APIBind)
	}
	return nil
}

func (c *Config) validateRouting() error {
	if c.Routing.MaxHops < 1 {
		return errors.New("routing.max_hops must be >= 1")
	}
	if c.Routing.MaxIntermediate < 0 {
		return errors.New("routing.max_intermediate must be >= 0")
	}
	switch c.Routing.Strategy {
	case StrategyFewestHops, StrategyBestQuality:
	default:
		return fmt.Errorf("routing.strategy must be %q or %q, got %q", StrategyFewestHops, StrategyBestQuality, c.Routing.Strategy)
	}
	return nil
}

func (c *Config) validateJobs() error {
	return ensurePositiveMap(map[string]int{
		"jobs.max_concurrent":           c.Jobs.MaxConcurrent,
		"jobs.batch_workers":            c.Jobs.BatchWorkers,
		"jobs.cleanup_interval_seconds": c.Jobs.CleanupIntervalSeconds,
	}, map[string]int{
		"jobs.retention_minutes":     c.Jobs.RetentionMinutes,
		"jobs.staging_max_age_hours": c.Jobs.StagingMaxAgeHours,
	})
}

func (c *Config) validateOptimizer() error {
	switch c.Optimizer.DefaultPreset {
	case "low", "medium", "high", "lossless":
		return nil
	default:
		return fmt.Errorf("optimizer.default_preset must be one of low, medium, high, lossless, got %q", c.Optimizer.DefaultPreset)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(positive map[string]int, nonNegative map[string]int) error {
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	for key, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}
