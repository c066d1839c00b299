// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachess/coachess/internal/logging"
)

// Refresher exchanges a refresh token for a new session.
// Implemented by the identity client; declared here so the manager does not
// depend on it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Manager is the single process-wide owner of the persisted session.
//
// Construct one at startup and hand it to every component that signs
// requests. Reads go through to the store each time so that independent
// processes sharing the same store observe sign-ins and sign-outs; the
// manager only coordinates writers within this process.
type Manager struct {
	mu        sync.Mutex
	store     Store
	refresher Refresher
}

// NewManager creates a session manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// SetRefresher installs the refresh-token exchanger. Wired after the
// identity client is constructed.
func (m *Manager) SetRefresher(r Refresher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresher = r
}

// Current returns the persisted session, or nil when none exists.
// A session past its expiry is treated as absent and cleared from the store.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

func (m *Manager) currentLocked() (*Session, error) {
	s, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if s.IsExpired() {
		logging.Debug().Str("user", s.User.ID).Msg("session expired, clearing")
		if err := m.store.Clear(); err != nil {
			return nil, fmt.Errorf("clear expired session: %w", err)
		}
		return nil, nil
	}
	return s, nil
}

// Require returns the current session or ErrNotAuthenticated.
// Request-signing call sites use this so the failure happens before any
// network attempt.
func (m *Manager) Require() (*Session, error) {
	s, err := m.Current()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotAuthenticated
	}
	return s, nil
}

// Set persists a new session, replacing any existing one.
func (m *Manager) Set(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.normalize()
	return m.store.Save(s)
}

// Clear removes the persisted session. Sign-out is best-effort local state
// removal; no server call is required.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Clear()
}

// Refresh exchanges the current refresh token for a new session and
// persists it. Concurrent callers are serialized so a burst of 401s
// produces a single token exchange; later callers see the refreshed
// session from the store.
//
// The expired-access-token case is the whole point here, so the raw stored
// session is used rather than Current's expiry filtering.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refresher == nil {
		return nil, ErrNotAuthenticated
	}

	stored, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, ErrNotAuthenticated
	}

	fresh, err := m.refresher.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	fresh.normalize()
	if fresh.User.ID == "" {
		fresh.User = stored.User
	}
	if err := m.store.Save(fresh); err != nil {
		return nil, fmt.Errorf("persist refreshed session: %w", err)
	}
	logging.Debug().Str("user", fresh.User.ID).Msg("session refreshed")
	return fresh, nil
}

// Close releases store resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Close()
}
