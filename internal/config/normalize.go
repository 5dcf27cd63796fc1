package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRouting()
	c.normalizeJobs()
	c.normalizeTools()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.Optimizer.DefaultPreset = strings.ToLower(strings.TrimSpace(c.Optimizer.DefaultPreset))
	if c.Optimizer.DefaultPreset == "" {
		c.Optimizer.DefaultPreset = defaultPreset
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("TRANSMUTE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	origins := c.Paths.CORSOrigins[:0]
	for _, origin := range c.Paths.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Paths.CORSOrigins = origins
	return nil
}

func (c *Config) normalizeRouting() {
	c.Routing.Strategy = strings.ToLower(strings.TrimSpace(c.Routing.Strategy))
	c.Routing.Strategy = strings.ReplaceAll(c.Routing.Strategy, "-", "_")
	if c.Routing.Strategy == "" {
		c.Routing.Strategy = defaultStrategy
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.MaxConcurrent == 0 {
		c.Jobs.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Jobs.BatchWorkers == 0 {
		c.Jobs.BatchWorkers = defaultBatchWorkers
	}
	if c.Jobs.CleanupIntervalSeconds == 0 {
		c.Jobs.CleanupIntervalSeconds = defaultCleanupIntervalSeconds
	}
}

func (c *Config) normalizeTools() {
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	defaults := Default().Tools
	fill(&c.Tools.FFmpeg, defaults.FFmpeg)
	fill(&c.Tools.FFprobe, defaults.FFprobe)
	fill(&c.Tools.EbookConvert, defaults.EbookConvert)
	fill(&c.Tools.Kepubify, defaults.Kepubify)
	fill(&c.Tools.Pandoc, defaults.Pandoc)
	fill(&c.Tools.Soffice, defaults.Soffice)
	fill(&c.Tools.Magick, defaults.Magick)
	fill(&c.Tools.Pdftoppm, defaults.Pdftoppm)
	fill(&c.Tools.Pdftotext, defaults.Pdftotext)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TRANSMUTE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
