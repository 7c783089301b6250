// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Portal.BaseURL = "https://portal.example.com"
	cfg.Portal.CenterID = "c-1"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing base url", func(c *Config) { c.Portal.BaseURL = "" }, true},
		{"missing center id", func(c *Config) { c.Portal.CenterID = "" }, true},
		{"zero retries", func(c *Config) { c.Portal.MaxRetries = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Sync.Concurrency = 0 }, true},
		{"zero lock expiry", func(c *Config) { c.Sync.LockExpiry = 0 }, true},
		{"background staleness above first load", func(c *Config) {
			c.Sync.StaleBackground = 4 * time.Hour
		}, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Sync.LockExpiry != 20*time.Second {
		t.Errorf("lock expiry default = %v, want 20s", cfg.Sync.LockExpiry)
	}
	if cfg.Sync.StaleFirstLoad != 3*time.Hour {
		t.Errorf("first load staleness default = %v, want 3h", cfg.Sync.StaleFirstLoad)
	}
	if cfg.Sync.StaleBackground != 10*time.Minute {
		t.Errorf("background staleness default = %v, want 10m", cfg.Sync.StaleBackground)
	}
	if cfg.Portal.MaxRetries != 3 {
		t.Errorf("max retries default = %d, want 3", cfg.Portal.MaxRetries)
	}
	if cfg.Portal.RequestTimeout != 15*time.Second {
		t.Errorf("request timeout default = %v, want 15s", cfg.Portal.RequestTimeout)
	}
	if cfg.Sync.DaysBehind != 2 {
		t.Errorf("days behind default = %d, want 2", cfg.Sync.DaysBehind)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"WSE_BASE_URL", "portal.base_url"},
		{"SYNC_POLL_INTERVAL", "sync.poll_interval"},
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := `
portal:
  base_url: https://portal.example.com
  center_id: center-file
sync:
  concurrency: 8
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("WSE_CENTER_ID", "center-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Portal.BaseURL != "https://portal.example.com" {
		t.Errorf("base url = %q, want file value", cfg.Portal.BaseURL)
	}
	if cfg.Portal.CenterID != "center-env" {
		t.Errorf("center id = %q, env must override file", cfg.Portal.CenterID)
	}
	if cfg.Sync.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8 from file", cfg.Sync.Concurrency)
	}
	if cfg.Sync.DaysAhead != 7 {
		t.Errorf("days ahead = %d, want default 7", cfg.Sync.DaysAhead)
	}
}
