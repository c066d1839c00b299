// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package config defines and loads the Coachess configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables (highest priority). See koanf.go for loading.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Coachess client.
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Session  SessionConfig  `koanf:"session"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Devstack DevstackConfig `koanf:"devstack"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// BackendConfig describes the hosted backend the client talks to.
// URL is the base URL; the identity, resource, and realtime endpoints are
// derived from it (/auth/v1, /rest/v1, /realtime/v1).
type BackendConfig struct {
	URL     string `koanf:"url"`
	AnonKey string `koanf:"anon_key"`

	// RequestTimeout bounds every resource and identity request.
	// A hung request fails instead of hanging the caller.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// BreakerEnabled wraps the resource client in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// SessionConfig controls where the signed-in session is persisted.
type SessionConfig struct {
	// Store selects the persistence backend: file, memory, or badger.
	Store string `koanf:"store"`

	// Path is the file path (file store) or directory (badger store).
	// Empty means a per-user default under the home directory.
	Path string `koanf:"path"`
}

// RealtimeConfig tunes the realtime message channel.
type RealtimeConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`

	// ReconnectMin/ReconnectMax bound the exponential backoff used when the
	// socket drops. The delay starts at min, doubles per attempt, and is
	// capped at max; it resets to min after a successful read.
	ReconnectMin time.Duration `koanf:"reconnect_min"`
	ReconnectMax time.Duration `koanf:"reconnect_max"`
}

// DevstackConfig configures the local development backend
// (`coachess devstack`). It is not used when talking to a hosted backend.
type DevstackConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for consistency. It is called by
// LoadWithKoanf after all layers are merged.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required (set COACHESS_URL or backend.url in the config file)")
	}
	if c.Backend.AnonKey == "" {
		return fmt.Errorf("backend.anon_key is required (set COACHESS_ANON_KEY)")
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend.request_timeout must be positive, got %s", c.Backend.RequestTimeout)
	}

	switch c.Session.Store {
	case "file", "memory", "badger":
	default:
		return fmt.Errorf("session.store must be one of file, memory, badger; got %q", c.Session.Store)
	}

	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_interval must be positive, got %s", c.Realtime.HeartbeatInterval)
	}
	if c.Realtime.ReconnectMin <= 0 || c.Realtime.ReconnectMax < c.Realtime.ReconnectMin {
		return fmt.Errorf("realtime reconnect bounds invalid: min=%s max=%s",
			c.Realtime.ReconnectMin, c.Realtime.ReconnectMax)
	}

	if c.Devstack.Port < 0 || c.Devstack.Port > 65535 {
		return fmt.Errorf("devstack.port out of range: %d", c.Devstack.Port)
	}

	return nil
}
