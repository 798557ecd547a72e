// Package config loads, normalizes, and validates dtddsync configuration.
//
// It reads TOML files, fills in defaults, expands user-relative paths, applies
// API key environment fallbacks, and exposes derived helpers such as the tag
// policy and state file locations.
package config
