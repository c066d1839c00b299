// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "COACHESS_CONFIG"

// Load reads configuration from defaults, config file, and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// defaultConfigPaths lists where a config file is searched, in order.
// The first file found wins.
func defaultConfigPaths() []string {
	paths := []string{"coachess.yaml", "coachess.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "coachess", "config.yaml"),
			filepath.Join(home, ".config", "coachess", "config.yml"),
		)
	}
	return paths
}

// defaultConfig returns a Config with all defaults applied.
// Defaults are loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            "",
			AnonKey:        "",
			RequestTimeout: 30 * time.Second,
			BreakerEnabled: true,
		},
		Session: SessionConfig{
			Store: "file",
			Path:  "", // resolved to ~/.local/state/coachess by the session store
		},
		Realtime: RealtimeConfig{
			HeartbeatInterval: 30 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			ReconnectMin:      1 * time.Second,
			ReconnectMax:      32 * time.Second,
		},
		Devstack: DevstackConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			JWTSecret:       "devstack-secret-not-for-production",
			TokenTTL:        1 * time.Hour,
			RateLimitReqs:   30,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// Precedence: ENV > file > defaults. The merged result is validated before
// being returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
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

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range defaultConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment variables cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Backend
		"coachess_url":             "backend.url",
		"coachess_anon_key":        "backend.anon_key",
		"coachess_request_timeout": "backend.request_timeout",
		"coachess_breaker_enabled": "backend.breaker_enabled",

		// Session store
		"session_store":      "session.store",
		"session_store_path": "session.path",

		// Realtime
		"realtime_heartbeat_interval": "realtime.heartbeat_interval",
		"realtime_handshake_timeout":  "realtime.handshake_timeout",
		"realtime_reconnect_min":      "realtime.reconnect_min",
		"realtime_reconnect_max":      "realtime.reconnect_max",

		// Devstack
		"devstack_host":              "devstack.host",
		"devstack_port":              "devstack.port",
		"devstack_jwt_secret":        "devstack.jwt_secret",
		"devstack_token_ttl":         "devstack.token_ttl",
		"devstack_rate_limit_reqs":   "devstack.rate_limit_reqs",
		"devstack_rate_limit_window": "devstack.rate_limit_window",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
