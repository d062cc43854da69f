// Package config loads gptscan settings from the base directory's
// config.json and the environment. Credentials come from the environment
// or CLI flags; the file carries tuning knobs. The loaded Config is
// constructed once and passed into constructors; core packages never read
// the environment themselves.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Environment variable names for credentials.
const (
	EnvAPIKey      = "GPTSCAN_API_KEY"
	EnvWorkspaceID = "GPTSCAN_WORKSPACE_ID"
)

// Config holds application configuration.
type Config struct {
	// APIKey authenticates against the Compliance API. Never written to
	// config.json; supplied via environment or flag.
	APIKey string `json:"-"`

	// WorkspaceID is the workspace under audit.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// BaseURL is the Compliance API root.
	BaseURL string `json:"base_url,omitempty"`

	// CacheMaxAgeHours is the staleness threshold for committed cache
	// entries. Entries older than this trigger a re-fetch.
	CacheMaxAgeHours int `json:"cache_max_age_hours,omitempty"`

	// RequestTimeoutSecs bounds each individual API call.
	RequestTimeoutSecs int `json:"request_timeout_secs,omitempty"`

	// RetryMax is the retry attempt ceiling for transient API failures.
	RetryMax int `json:"retry_max,omitempty"`

	// RetryBaseDelayMillis is the first backoff delay; doubles per attempt
	// up to RetryMaxDelaySecs. Tests lower it to keep retries fast.
	RetryBaseDelayMillis int `json:"retry_base_delay_millis,omitempty"`

	// RetryMaxDelaySecs caps the computed backoff delay.
	RetryMaxDelaySecs int `json:"retry_max_delay_secs,omitempty"`

	// PaceIntervalMillis is the client-side request pacing interval,
	// independent of server-signaled throttling.
	PaceIntervalMillis int `json:"pace_interval_millis,omitempty"`

	// PageSize is the page size requested from the list endpoint.
	PageSize int `json:"page_size,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://api.chatgpt.com/v1",
		CacheMaxAgeHours:     24,
		RequestTimeoutSecs:   30,
		RetryMax:             5,
		RetryBaseDelayMillis: 1000,
		RetryMaxDelaySecs:    30,
		PaceIntervalMillis:   200,
		PageSize:             100,
	}
}

// Load loads configuration from baseDir/config.json, applies defaults for
// unset fields, then overlays credentials from the environment. A missing
// file is not an error. The baseDir parameter allows tests to use
// t.TempDir() instead of ~/.gptscan.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg = Merge(DefaultConfig(), cfg)

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}
	if ws := os.Getenv(EnvWorkspaceID); ws != "" {
		cfg.WorkspaceID = ws
	}
	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns a zero-valued config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values win if non-zero.
func Merge(base, overlay *Config) *Config {
	result := *base

	if overlay.APIKey != "" {
		result.APIKey = overlay.APIKey
	}
	if overlay.WorkspaceID != "" {
		result.WorkspaceID = overlay.WorkspaceID
	}
	if overlay.BaseURL != "" {
		result.BaseURL = overlay.BaseURL
	}
	if overlay.CacheMaxAgeHours != 0 {
		result.CacheMaxAgeHours = overlay.CacheMaxAgeHours
	}
	if overlay.RequestTimeoutSecs != 0 {
		result.RequestTimeoutSecs = overlay.RequestTimeoutSecs
	}
	if overlay.RetryMax != 0 {
		result.RetryMax = overlay.RetryMax
	}
	if overlay.RetryBaseDelayMillis != 0 {
		result.RetryBaseDelayMillis = overlay.RetryBaseDelayMillis
	}
	if overlay.RetryMaxDelaySecs != 0 {
		result.RetryMaxDelaySecs = overlay.RetryMaxDelaySecs
	}
	if overlay.PaceIntervalMillis != 0 {
		result.PaceIntervalMillis = overlay.PaceIntervalMillis
	}
	if overlay.PageSize != 0 {
		result.PageSize = overlay.PageSize
	}

	return &result
}

// CacheMaxAge returns the staleness threshold as a duration.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeHours) * time.Hour
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// RetryBaseDelay returns the first backoff delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

// RetryMaxDelay returns the backoff delay cap as a duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySecs) * time.Second
}

// PaceInterval returns the client-side pacing interval as a duration.
func (c *Config) PaceInterval() time.Duration {
	return time.Duration(c.PaceIntervalMillis) * time.Millisecond
}
