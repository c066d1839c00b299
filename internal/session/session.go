// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package session holds the signed-in user's session and persists it across
// process restarts.
//
// One Manager is constructed at startup and passed by reference to every
// component that needs to answer "who is logged in". Components never read
// ambient storage themselves. The persisted shape mirrors what the identity
// endpoint returns: {access_token, refresh_token, expires_at, user}.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotAuthenticated is returned when an operation requires a signed-in
// user and no valid (present, unexpired) session exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// User is the authenticated user summary carried inside a session.
// ID and Email come from the identity provider; the remaining fields are the
// profile row maintained in the users collection.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Session is the persisted authentication state.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is a unix timestamp in seconds. When the identity endpoint
	// omits it, it is recovered from the access token's exp claim.
	ExpiresAt int64 `json:"expires_at"`

	User User `json:"user"`
}

// IsExpired reports whether the session's access token is past its expiry.
// A session with no known expiry is treated as expired; every token the
// identity endpoint issues carries one.
func (s *Session) IsExpired() bool {
	if s.ExpiresAt == 0 {
		return true
	}
	return time.Now().Unix() >= s.ExpiresAt
}

// normalize fills ExpiresAt from the access token's exp claim when the
// identity response did not include it.
func (s *Session) normalize() {
	if s.ExpiresAt == 0 && s.AccessToken != "" {
		s.ExpiresAt = expiryFromToken(s.AccessToken)
	}
}

// expiryFromToken extracts the exp claim from a JWT without verifying the
// signature. Verification is the server's job; the client only needs the
// expiry for its "treat expired as absent" rule.
func expiryFromToken(token string) int64 {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}
