// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/logging"
)

// Store persists at most one session.
//
// Load returns (nil, nil) when no session is stored. Expiry is not a store
// concern; the Manager applies the expired-means-absent rule on read.
type Store interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
	Close() error
}

// NewStore constructs a session store from configuration.
//
// Backends:
//   - "file": single JSON file, the default (one well-known local key)
//   - "memory": process-local, for tests
//   - "badger": persistent KV store
func NewStore(cfg config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case "", "file":
		path := cfg.Path
		if path == "" {
			var err error
			path, err = defaultSessionPath()
			if err != nil {
				return nil, fmt.Errorf("resolve default session path: %w", err)
			}
		}
		logging.Debug().Str("path", path).Msg("using file session store")
		return NewFileStore(path), nil

	case "memory":
		return NewMemoryStore(), nil

	case "badger":
		dir := cfg.Path
		if dir == "" {
			base, err := defaultSessionPath()
			if err != nil {
				return nil, fmt.Errorf("resolve default session path: %w", err)
			}
			dir = filepath.Join(filepath.Dir(base), "session.badger")
		}
		logging.Debug().Str("dir", dir).Msg("using badger session store")
		return NewBadgerStore(dir)

	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// defaultSessionPath returns the per-user default location of the session
// file: $XDG_STATE_HOME/coachess/session.json or ~/.local/state/coachess/session.json.
func defaultSessionPath() (string, error) {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "coachess", "session.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "coachess", "session.json"), nil
}
