// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package backend

import (
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/session"
)

// decodeTestBody decodes a request body into out, failing the test on error.
func decodeTestBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func checkError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

func checkTrue(t *testing.T, name string, cond bool) {
	t.Helper()
	if !cond {
		t.Errorf("%s: expected true", name)
	}
}

func backendConfig(url string) config.BackendConfig {
	return config.BackendConfig{
		URL:            url,
		AnonKey:        "test-anon-key",
		RequestTimeout: 5 * time.Second,
	}
}

// signedInManager returns a manager holding a valid session.
func signedInManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.NewMemoryStore())
	err := m.Set(&session.Session{
		AccessToken:  "valid-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Unix() + 3600,
		User:         session.User{ID: "user-1", Email: "coach@example.com"},
	})
	checkNoError(t, err)
	return m
}
