package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir  string   `toml:"staging_dir"`
	OutputDir   string   `toml:"output_dir"`
	StateDir    string   `toml:"state_dir"`
	LogDir      string   `toml:"log_dir"`
	APIBind     string   `toml:"api_bind"`
	APIToken    string   `toml:"api_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Routing controls the path resolver.
type Routing struct {
	MaxHops         int    `toml:"max_hops"`
	Strategy        string `toml:"strategy"`
	MaxIntermediate int    `toml:"max_intermediate"`
}

// Jobs controls job manager concurrency and retention.
type Jobs struct {
	MaxConcurrent          int `toml:"max_concurrent"`
	BatchWorkers           int `toml:"batch_workers"`
	RetentionMinutes       int `toml:"retention_minutes"`
	CleanupIntervalSeconds int `toml:"cleanup_interval_seconds"`
	StagingMaxAgeHours     int `toml:"staging_max_age_hours"`
}

// Optimizer holds option refinement defaults.
type Optimizer struct {
	DefaultPreset string `toml:"default_preset"`
}

// Tools names the external binaries used by codec backends.
type Tools struct {
	FFmpeg        string `toml:"ffmpeg"`
	FFprobe       string `toml:"ffprobe"`
	EbookConvert  string `toml:"ebook_convert"`
	Kepubify      string `toml:"kepubify"`
	Pandoc        string `toml:"pandoc"`
	Soffice       string `toml:"soffice"`
	Magick        string `toml:"magick"`
	Pdftoppm      string `toml:"pdftoppm"`
	Pdftotext     string `toml:"pdftotext"`
	DraptoEnabled bool   `toml:"drapto_enabled"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	BatchCompleted bool   `toml:"batch_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for transmute.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address and access control
//   - Routing: hop limit and search strategy for the path resolver
//   - Jobs: concurrency, batch workers and retention of finished jobs
//   - Optimizer: default quality preset
//   - Tools: external converter binaries
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Routing       Routing       `toml:"routing"`
	Jobs          Jobs          `toml:"jobs"`
	Optimizer     Optimizer     `toml:"optimizer"`
	Tools         Tools         `toml:"tools"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("transmute.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite database used for job history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "transmute.lock")
}

// Retention is how long finished jobs stay queryable before Cleanup drops them.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Jobs.RetentionMinutes) * time.Minute
}

// CleanupInterval is the janitor period of the daemon.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Jobs.CleanupIntervalSeconds) * time.Second
}

// StagingMaxAge is the age after which orphaned staging directories are removed.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Jobs.StagingMaxAgeHours) * time.Hour
}

// NotificationTimeout bounds a single ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
