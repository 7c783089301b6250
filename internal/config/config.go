// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package config loads tracker configuration from defaults, an optional
// YAML file, and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/alkharj/config.yaml",
	"/etc/alkharj/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the complete tracker configuration.
type Config struct {
	Portal  PortalConfig  `koanf:"portal"`
	Store   StoreConfig   `koanf:"store"`
	Sync    SyncConfig    `koanf:"sync"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// PortalConfig configures access to the WSE portal API.
type PortalConfig struct {
	BaseURL           string        `koanf:"base_url"`
	CenterID          string        `koanf:"center_id"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	RateLimitPerSec   float64       `koanf:"rate_limit_per_sec"`
	MemoTTL           time.Duration `koanf:"memo_ttl"`
	TokenRefreshURL   string        `koanf:"token_refresh_url"`
	TokenNeedsRefresh time.Duration `koanf:"token_needs_refresh"`
	TokenExpired      time.Duration `koanf:"token_expired"`
}

// StoreConfig configures the persistent document store.
type StoreConfig struct {
	Path         string        `koanf:"path"`
	ScheduleTTL  time.Duration `koanf:"schedule_ttl"`
	SummariesTTL time.Duration `koanf:"summaries_ttl"`
}

// SyncConfig configures refresh scheduling and the advisory lock.
type SyncConfig struct {
	DaysAhead        int           `koanf:"days_ahead"`
	DaysBehind       int           `koanf:"days_behind"`
	Concurrency      int           `koanf:"concurrency"`
	PollInterval     time.Duration `koanf:"poll_interval"`
	StaleFirstLoad   time.Duration `koanf:"stale_first_load"`
	StaleBackground  time.Duration `koanf:"stale_background"`
	LockExpiry       time.Duration `koanf:"lock_expiry"`
	DeviceIDPath     string        `koanf:"device_id_path"`
	RefreshOnStartup bool          `koanf:"refresh_on_startup"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:           "",
			CenterID:          "",
			RequestTimeout:    15 * time.Second,
			MaxRetries:        3,
			RetryDelay:        time.Second,
			RateLimitPerSec:   5,
			MemoTTL:           10 * time.Minute,
			TokenRefreshURL:   "",
			TokenNeedsRefresh: 10 * time.Hour,
			TokenExpired:      24 * time.Hour,
		},
		Store: StoreConfig{
			Path:         "/data/alkharj",
			ScheduleTTL:  7 * 24 * time.Hour,
			SummariesTTL: 7 * 24 * time.Hour,
		},
		Sync: SyncConfig{
			DaysAhead:        7,
			DaysBehind:       2,
			Concurrency:      4,
			PollInterval:     time.Minute,
			StaleFirstLoad:   3 * time.Hour,
			StaleBackground:  10 * time.Minute,
			LockExpiry:       20 * time.Second,
			DeviceIDPath:     "/data/alkharj/device_id",
			RefreshOnStartup: true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration in three layers:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if it exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// WSE_BASE_URL -> portal.base_url, SYNC_POLL_INTERVAL -> sync.poll_interval
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, checking the env override
// first and then the default paths. Returns empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unknown variables map to empty string and are ignored so that
// unrelated process environment never leaks into the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"wse_base_url":            "portal.base_url",
		"wse_center_id":           "portal.center_id",
		"wse_request_timeout":     "portal.request_timeout",
		"wse_max_retries":         "portal.max_retries",
		"wse_retry_delay":         "portal.retry_delay",
		"wse_rate_limit_per_sec":  "portal.rate_limit_per_sec",
		"wse_memo_ttl":            "portal.memo_ttl",
		"wse_token_refresh_url":   "portal.token_refresh_url",
		"wse_token_needs_refresh": "portal.token_needs_refresh",
		"wse_token_expired":       "portal.token_expired",

		"store_path":          "store.path",
		"store_schedule_ttl":  "store.schedule_ttl",
		"store_summaries_ttl": "store.summaries_ttl",

		"sync_days_ahead":         "sync.days_ahead",
		"sync_days_behind":        "sync.days_behind",
		"sync_concurrency":        "sync.concurrency",
		"sync_poll_interval":      "sync.poll_interval",
		"sync_stale_first_load":   "sync.stale_first_load",
		"sync_stale_background":   "sync.stale_background",
		"sync_lock_expiry":        "sync.lock_expiry",
		"sync_device_id_path":     "sync.device_id_path",
		"sync_refresh_on_startup": "sync.refresh_on_startup",

		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if c.Portal.CenterID == "" {
		return fmt.Errorf("portal.center_id is required")
	}
	if c.Portal.MaxRetries < 1 {
		return fmt.Errorf("portal.max_retries must be at least 1, got %d", c.Portal.MaxRetries)
	}
	if c.Portal.RequestTimeout <= 0 {
		return fmt.Errorf("portal.request_timeout must be positive, got %v", c.Portal.RequestTimeout)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.DaysAhead < 1 {
		return fmt.Errorf("sync.days_ahead must be at least 1, got %d", c.Sync.DaysAhead)
	}
	if c.Sync.DaysBehind < 0 {
		return fmt.Errorf("sync.days_behind must not be negative, got %d", c.Sync.DaysBehind)
	}
	if c.Sync.LockExpiry <= 0 {
		return fmt.Errorf("sync.lock_expiry must be positive, got %v", c.Sync.LockExpiry)
	}
	if c.Sync.StaleBackground <= 0 || c.Sync.StaleFirstLoad <= 0 {
		return fmt.Errorf("sync staleness thresholds must be positive")
	}
	if c.Sync.StaleBackground > c.Sync.StaleFirstLoad {
		return fmt.Errorf("sync.stale_background (%v) must not exceed sync.stale_first_load (%v)",
			c.Sync.StaleBackground, c.Sync.StaleFirstLoad)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
