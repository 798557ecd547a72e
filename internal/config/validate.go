package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDTDD(); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validateTags(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDTDD() error {
	if c.DTDD.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("dtdd.api_key is required. Set DTDD_API_KEY env var or edit %s (create with 'dtddsync config init')", defaultPath)
	}
	if err := validateURL("dtdd.base_url", c.DTDD.BaseURL); err != nil {
		return err
	}
	if c.DTDD.RequestDelayMS < 0 {
		return errors.New("dtdd.request_delay_ms must be >= 0")
	}
	if c.DTDD.MaxRetries < 0 {
		return errors.New("dtdd.max_retries must be >= 0")
	}
	if c.DTDD.CacheTTLMinutes < 0 {
		return errors.New("dtdd.cache_ttl_minutes must be >= 0")
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if strings.TrimSpace(c.Jellyfin.URL) == "" {
		return errors.New("jellyfin.url must be set")
	}
	if err := validateURL("jellyfin.url", c.Jellyfin.URL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Jellyfin.APIKey) == "" {
		return errors.New("jellyfin.api_key must be set (or set JELLYFIN_API_KEY)")
	}
	return nil
}

func (c *Config) validateTags() error {
	if c.Tags.PositivePrefix == "" || c.Tags.NegativePrefix == "" {
		return errors.New("tags.positive_prefix and tags.negative_prefix must be set")
	}
	pos := strings.ToLower(c.Tags.PositivePrefix)
	neg := strings.ToLower(c.Tags.NegativePrefix)
	if strings.HasPrefix(pos, neg) || strings.HasPrefix(neg, pos) {
		return errors.New("tags.positive_prefix and tags.negative_prefix must not overlap")
	}
	if c.Tags.MinVotes < 0 {
		return errors.New("tags.min_votes must be >= 0")
	}
	for _, id := range append(append([]int(nil), c.Tags.EnabledCategories...), c.Tags.EnabledTopics...) {
		if id <= 0 {
			return fmt.Errorf("tags allow-list ids must be positive, got %d", id)
		}
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.IntervalMinutes < 0 {
		return errors.New("sync.interval_minutes must be >= 0 (0 disables scheduled runs)")
	}
	if c.Sync.RefreshAfterHours < 0 {
		return errors.New("sync.refresh_after_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, value)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, value)
	}
	return nil
}
