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

	"dtddsync/internal/triggers"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// DTDD contains configuration for the DoesTheDogDie API.
type DTDD struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	RequestDelayMS  int    `toml:"request_delay_ms"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxRetries      int    `toml:"max_retries"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// Jellyfin contains configuration for the Jellyfin library being tagged.
type Jellyfin struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	IncludeMovies  bool   `toml:"include_movies"`
	IncludeSeries  bool   `toml:"include_series"`
	IncludeSeasons bool   `toml:"include_seasons"`
}

// Tags contains the trigger tag policy.
type Tags struct {
	PositivePrefix    string `toml:"positive_prefix"`
	NegativePrefix    string `toml:"negative_prefix"`
	MinVotes          int    `toml:"min_votes"`
	ShowAll           bool   `toml:"show_all"`
	EnabledCategories []int  `toml:"enabled_categories"`
	EnabledTopics     []int  `toml:"enabled_topics"`
	// AddWarningTags false records only the DTDD id on items.
	AddWarningTags    bool   `toml:"add_warning_tags"`
}

// Sync contains scheduled library sync settings.
type Sync struct {
	IntervalMinutes   int  `toml:"interval_minutes"`
	RefreshAfterHours int  `toml:"refresh_after_hours"`
	RunOnStart        bool `toml:"run_on_start"`
}

// Index contains trigger index persistence settings.
type Index struct {
	Path      string `toml:"path"`
	SeedsPath string `toml:"seeds_path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SyncSummary    bool   `toml:"sync_summary"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for dtddsync.
//
// Configuration sections by subsystem:
//   - Paths: state directories and API bind address
//   - DTDD: remote trigger catalog access and pacing
//   - Jellyfin: host library access
//   - Tags: prefix scheme, vote threshold, and allow-lists
//   - Sync: daemon schedule and refresh window
//   - Index: trigger index file and seed titles
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	DTDD          DTDD          `toml:"dtdd"`
	Jellyfin      Jellyfin      `toml:"jellyfin"`
	Tags          Tags          `toml:"tags"`
	Sync          Sync          `toml:"sync"`
	Index         Index         `toml:"index"`
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

	projectPath, err := filepath.Abs("dtddsync.toml")
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
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Index.Path)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TagPolicy builds the reconciliation policy from the [tags] section.
func (c *Config) TagPolicy() triggers.Policy {
	return triggers.Policy{
		PositivePrefix:    c.Tags.PositivePrefix,
		NegativePrefix:    c.Tags.NegativePrefix,
		MinVotes:          c.Tags.MinVotes,
		ShowAll:           c.Tags.ShowAll,
		EnabledCategories: triggers.NewIDSet(c.Tags.EnabledCategories...),
		EnabledTopics:     triggers.NewIDSet(c.Tags.EnabledTopics...),
	}
}

// LedgerPath returns the sqlite sync ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "dtddsync.lock")
}

// RequestDelay returns the fixed pause between DTDD calls.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.DTDD.RequestDelayMS) * time.Millisecond
}

// RequestTimeout returns the per-request DTDD timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.DTDD.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long DTDD responses are reused.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.DTDD.CacheTTLMinutes) * time.Minute
}

// SyncInterval returns the scheduled sync period; zero disables scheduling.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// RefreshAfter returns how long a synced item is skipped by scheduled runs.
func (c *Config) RefreshAfter() time.Duration {
	return time.Duration(c.Sync.RefreshAfterHours) * time.Hour
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

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
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
