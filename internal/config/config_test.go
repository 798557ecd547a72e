package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"dtddsync/internal/config"
	"dtddsync/internal/services/jellyfin"
)

func setRequiredEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DTDD_API_KEY", "dtdd-key")
	t.Setenv("JELLYFIN_API_KEY", "jf-key")
	return home
}

func TestLoadSampleConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	home := setRequiredEnv(t)
	path := filepath.Join(home, "dtddsync.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}
	if cfg.DTDD.APIKey != "dtdd-key" || cfg.Jellyfin.APIKey != "jf-key" {
		t.Fatalf("expected env API keys, got %q %q", cfg.DTDD.APIKey, cfg.Jellyfin.APIKey)
	}
	wantData := filepath.Join(home, ".local", "share", "dtddsync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("data dir = %q, want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Index.Path != filepath.Join(wantData, "trigger_index.json") {
		t.Fatalf("unexpected index path %q", cfg.Index.Path)
	}
	if cfg.Index.SeedsPath != "" {
		t.Fatalf("expected empty seeds path, got %q", cfg.Index.SeedsPath)
	}
	if !cfg.Jellyfin.IncludeMovies || !cfg.Tags.AddWarningTags {
		t.Fatalf("sample should tag movies, got include_movies=%v add_warning_tags=%v", cfg.Jellyfin.IncludeMovies, cfg.Tags.AddWarningTags)
	}
	if cfg.RequestDelay() != time.Second {
		t.Fatalf("request delay = %v", cfg.RequestDelay())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.toml")

	type payload struct {
		DTDD struct {
			APIKey  string `toml:"api_key"`
			BaseURL string `toml:"base_url"`
		} `toml:"dtdd"`
		Jellyfin struct {
			URL           string `toml:"url"`
			IncludeMovies bool   `toml:"include_movies"`
		} `toml:"jellyfin"`
		Tags struct {
			EnabledCategories []int `toml:"enabled_categories"`
			MinVotes          int   `toml:"min_votes"`
			AddWarningTags    bool  `toml:"add_warning_tags"`
		} `toml:"tags"`
	}
	custom := payload{}
	custom.DTDD.APIKey = "file-key"
	custom.DTDD.BaseURL = "https://example.com/dtdd/"
	custom.Jellyfin.URL = "http://jellyfin.local:8096/"
	custom.Tags.EnabledCategories = []int{3, 1, 3}
	custom.Tags.MinVotes = 20

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DTDD.APIKey != "file-key" {
		t.Fatalf("file key should beat env, got %q", cfg.DTDD.APIKey)
	}
	if cfg.DTDD.BaseURL != "https://example.com/dtdd" {
		t.Fatalf("base url not trimmed: %q", cfg.DTDD.BaseURL)
	}
	if cfg.Jellyfin.URL != "http://jellyfin.local:8096" {
		t.Fatalf("jellyfin url not trimmed: %q", cfg.Jellyfin.URL)
	}

	policy := cfg.TagPolicy()
	if policy.MinVotes != 20 || policy.PositivePrefix != "CW:" || policy.NegativePrefix != "Safe:" {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if len(policy.EnabledCategories) != 2 || !policy.Filtering() {
		t.Fatalf("expected deduped category allow-list, got %v", policy.EnabledCategories)
	}
	if cfg.Tags.AddWarningTags {
		t.Fatal("add_warning_tags = false should be honored")
	}
	list := jellyfin.ListOptionsFromConfig(cfg)
	if list.IncludeMovies || !list.IncludeSeries {
		t.Fatalf("unexpected list options %+v", list)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[jellyfin]\nurl = \"http://x\"\nbogus = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateFailures(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.DTDD.APIKey = "k"
		cfg.Jellyfin.URL = "http://localhost:8096"
		cfg.Jellyfin.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing dtdd key", func(c *config.Config) { c.DTDD.APIKey = "" }, "dtdd.api_key"},
		{"missing jellyfin url", func(c *config.Config) { c.Jellyfin.URL = "" }, "jellyfin.url"},
		{"relative jellyfin url", func(c *config.Config) { c.Jellyfin.URL = "localhost:8096" }, "jellyfin.url"},
		{"missing jellyfin key", func(c *config.Config) { c.Jellyfin.APIKey = "" }, "jellyfin.api_key"},
		{"overlapping prefixes", func(c *config.Config) { c.Tags.NegativePrefix = "cw: safe" }, "overlap"},
		{"empty prefix", func(c *config.Config) { c.Tags.PositivePrefix = "" }, "positive_prefix"},
		{"negative votes", func(c *config.Config) { c.Tags.MinVotes = -1 }, "min_votes"},
		{"bad allow-list id", func(c *config.Config) { c.Tags.EnabledTopics = []int{0} }, "allow-list"},
		{"negative interval", func(c *config.Config) { c.Sync.IntervalMinutes = -5 }, "interval_minutes"},
		{"negative delay", func(c *config.Config) { c.DTDD.RequestDelayMS = -1 }, "request_delay_ms"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }, "request_timeout"},
	}

	valid := base()
	if err := valid.Validate(); err != nil {
		t.Fatalf("baseline config should validate: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/var/lib/dtddsync"
	if cfg.LedgerPath() != "/var/lib/dtddsync/ledger.db" {
		t.Fatalf("ledger path = %q", cfg.LedgerPath())
	}
	if cfg.LockPath() != "/var/lib/dtddsync/dtddsync.lock" {
		t.Fatalf("lock path = %q", cfg.LockPath())
	}
	if cfg.SyncInterval() != 6*time.Hour || cfg.RefreshAfter() != 24*time.Hour {
		t.Fatalf("unexpected durations %v %v", cfg.SyncInterval(), cfg.RefreshAfter())
	}
}
