package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDTDD()
	c.normalizeJellyfin()
	c.normalizeTags()
	if err := c.normalizeIndex(); err != nil {
		return err
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
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
		if value, ok := os.LookupEnv("DTDDSYNC_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDTDD() {
	c.DTDD.APIKey = strings.TrimSpace(c.DTDD.APIKey)
	if c.DTDD.APIKey == "" {
		if value, ok := os.LookupEnv("DTDD_API_KEY"); ok {
			c.DTDD.APIKey = strings.TrimSpace(value)
		}
	}
	c.DTDD.BaseURL = strings.TrimRight(strings.TrimSpace(c.DTDD.BaseURL), "/")
	if c.DTDD.BaseURL == "" {
		c.DTDD.BaseURL = defaultDTDDBaseURL
	}
	if c.DTDD.TimeoutSeconds <= 0 {
		c.DTDD.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) normalizeJellyfin() {
	if c.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.Jellyfin.APIKey = value
		}
	}
	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
}

func (c *Config) normalizeTags() {
	c.Tags.PositivePrefix = strings.TrimSpace(c.Tags.PositivePrefix)
	c.Tags.NegativePrefix = strings.TrimSpace(c.Tags.NegativePrefix)
	c.Tags.EnabledCategories = dedupeIDs(c.Tags.EnabledCategories)
	c.Tags.EnabledTopics = dedupeIDs(c.Tags.EnabledTopics)
}

func (c *Config) normalizeIndex() error {
	var err error
	if strings.TrimSpace(c.Index.Path) == "" {
		c.Index.Path = filepath.Join(c.Paths.DataDir, defaultIndexFile)
	}
	if c.Index.Path, err = expandPath(c.Index.Path); err != nil {
		return fmt.Errorf("index.path: %w", err)
	}
	if c.Index.SeedsPath, err = expandPath(strings.TrimSpace(c.Index.SeedsPath)); err != nil {
		return fmt.Errorf("index.seeds_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func dedupeIDs(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
