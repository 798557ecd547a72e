package config

const (
	defaultConfigPath        = "~/.config/dtddsync/config.toml"
	defaultDataDir           = "~/.local/share/dtddsync"
	defaultLogDir            = "~/.local/share/dtddsync/logs"
	defaultAPIBind           = "127.0.0.1:7488"
	defaultDTDDBaseURL       = "https://www.doesthedogdie.com"
	defaultRequestDelayMS    = 1000
	defaultTimeoutSeconds    = 15
	defaultMaxRetries        = 2
	defaultCacheTTLMinutes   = 60
	defaultPositivePrefix    = "CW:"
	defaultNegativePrefix    = "Safe:"
	defaultMinVotes          = 5
	defaultIntervalMinutes   = 360
	defaultRefreshAfterHours = 24
	defaultIndexFile         = "trigger_index.json"
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		DTDD: DTDD{
			BaseURL:         defaultDTDDBaseURL,
			RequestDelayMS:  defaultRequestDelayMS,
			TimeoutSeconds:  defaultTimeoutSeconds,
			MaxRetries:      defaultMaxRetries,
			CacheTTLMinutes: defaultCacheTTLMinutes,
		},
		Jellyfin: Jellyfin{
			IncludeMovies: true,
			IncludeSeries: true,
		},
		Tags: Tags{
			PositivePrefix: defaultPositivePrefix,
			NegativePrefix: defaultNegativePrefix,
			MinVotes:       defaultMinVotes,
			AddWarningTags: true,
		},
		Sync: Sync{
			IntervalMinutes:   defaultIntervalMinutes,
			RefreshAfterHours: defaultRefreshAfterHours,
			RunOnStart:        true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			SyncSummary:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
