// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"testing"
	"time"

	"github.com/coachess/coachess/internal/config"
)

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

func testDevstackConfig() config.DevstackConfig {
	return config.DevstackConfig{
		Host:            "127.0.0.1",
		Port:            0,
		JWTSecret:       "devstack-test-secret",
		TokenTTL:        time.Hour,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}
}
