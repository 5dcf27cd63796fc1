package config

const (
	defaultConfigPath             = "~/.config/transmute/config.toml"
	defaultStagingDir             = "~/.local/share/transmute/staging"
	defaultOutputDir              = "~/transmute"
	defaultStateDir               = "~/.local/share/transmute"
	defaultLogDir                 = "~/.local/share/transmute/logs"
	defaultAPIBind                = "127.0.0.1:7490"
	defaultMaxHops                = 2
	defaultStrategy               = StrategyFewestHops
	defaultMaxIntermediate        = 1
	defaultMaxConcurrent          = 2
	defaultBatchWorkers           = 1
	defaultRetentionMinutes       = 60
	defaultCleanupIntervalSeconds = 300
	defaultStagingMaxAgeHours     = 24
	defaultPreset                 = "medium"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Routing strategies accepted in routing.strategy.
const (
	StrategyFewestHops  = "fewest_hops"
	StrategyBestQuality = "best_quality"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Routing: Routing{
			MaxHops:         defaultMaxHops,
			Strategy:        defaultStrategy,
			MaxIntermediate: defaultMaxIntermediate,
		},
		Jobs: Jobs{
			MaxConcurrent:          defaultMaxConcurrent,
			BatchWorkers:           defaultBatchWorkers,
			RetentionMinutes:       defaultRetentionMinutes,
			CleanupIntervalSeconds: defaultCleanupIntervalSeconds,
			StagingMaxAgeHours:     defaultStagingMaxAgeHours,
		},
		Optimizer: Optimizer{
			DefaultPreset: defaultPreset,
		},
		Tools: Tools{
			FFmpeg:        "ffmpeg",
			FFprobe:       "ffprobe",
			EbookConvert:  "ebook-convert",
			Kepubify:      "kepubify",
			Pandoc:        "pandoc",
			Soffice:       "soffice",
			Magick:        "magick",
			Pdftoppm:      "pdftoppm",
			Pdftotext:     "pdftotext",
			DraptoEnabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			BatchCompleted: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
