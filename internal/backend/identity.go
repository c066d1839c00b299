// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachess/coachess/internal/metrics"
	"github.com/coachess/coachess/internal/session"
)

// IdentityClient talks to the hosted identity endpoint (/auth/v1).
//
// It exchanges credentials for sessions and manages the account itself
// (registration, password recovery and update). Sessions it returns are
// handed to the session.Manager for persistence; this client holds no state.
type IdentityClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// Ensure IdentityClient satisfies the session manager's refresh hook.
var _ session.Refresher = (*IdentityClient)(nil)

// NewIdentityClient creates an identity client for the backend at baseURL.
func NewIdentityClient(baseURL, anonKey string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/auth/v1",
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SignUpParams are the registration inputs.
type SignUpParams struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	Timezone    string
}

// authResponse is the identity endpoint's token-bearing response shape,
// returned by both signup and token exchange.
type authResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"`
	ExpiresIn    int64    `json:"expires_in"`
	User         authUser `json:"user"`
}

type authUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
}

type userMetadata struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Timezone    string `json:"timezone"`
}

// toSession maps an identity response to the persisted session shape.
func (r *authResponse) toSession() *session.Session {
	expiresAt := r.ExpiresAt
	if expiresAt == 0 && r.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + r.ExpiresIn
	}
	return &session.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    expiresAt,
		User: session.User{
			ID:          r.User.ID,
			Email:       r.User.Email,
			DisplayName: r.User.UserMetadata.DisplayName,
			Role:        r.User.UserMetadata.Role,
			Timezone:    r.User.UserMetadata.Timezone,
		},
	}
}

// SignUp registers a new account. The display name, role, and timezone ride
// along as user metadata; the corresponding profile row in the users
// collection is created separately by the caller.
func (c *IdentityClient) SignUp(ctx context.Context, p SignUpParams) (*session.Session, error) {
	body := map[string]interface{}{
		"email":    p.Email,
		"password": p.Password,
		"data": map[string]string{
			"display_name": p.DisplayName,
			"role":         p.Role,
			"timezone":     p.Timezone,
		},
	}

	var resp authResponse
	if err := c.post(ctx, "/signup", "", body, &resp); err != nil {
		recordIdentityOutcome("signup", err)
		return nil, err
	}
	metrics.IdentityRequests.WithLabelValues("signup", "success").Inc()
	return resp.toSession(), nil
}

// SignIn exchanges email and password for a session.
func (c *IdentityClient) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var resp authResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		recordIdentityOutcome("signin", err)
		return nil, err
	}
	metrics.IdentityRequests.WithLabelValues("signin", "success").Inc()
	return resp.toSession(), nil
}

// Refresh exchanges a refresh token for a new session.
// This implements session.Refresher for the resource client's
// refresh-on-401 retry.
func (c *IdentityClient) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp authResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		recordIdentityOutcome("refresh", err)
		return nil, err
	}
	metrics.IdentityRequests.WithLabelValues("refresh", "success").Inc()
	return resp.toSession(), nil
}

// RecoverPassword requests a password-reset email for the given address.
// The endpoint acknowledges without revealing whether the account exists.
func (c *IdentityClient) RecoverPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := c.post(ctx, "/recover", "", body, nil); err != nil {
		recordIdentityOutcome("recover", err)
		return err
	}
	metrics.IdentityRequests.WithLabelValues("recover", "success").Inc()
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (c *IdentityClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	body := map[string]string{"password": newPassword}
	if err := c.do(ctx, http.MethodPut, "/user", accessToken, body, nil); err != nil {
		recordIdentityOutcome("update_password", err)
		return err
	}
	metrics.IdentityRequests.WithLabelValues("update_password", "success").Inc()
	return nil
}

// post issues a POST request; bearerToken may be empty for anonymous calls.
func (c *IdentityClient) post(ctx context.Context, path, bearerToken string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, bearerToken, body, out)
}

func (c *IdentityClient) do(ctx context.Context, method, path, bearerToken string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode identity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create identity request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newIdentityError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode identity response: %w", err)
		}
	}
	return nil
}

// recordIdentityOutcome increments the identity request counter by
// error classification.
func recordIdentityOutcome(operation string, err error) {
	outcome := "error"
	switch err.(type) {
	case *RateLimitedError:
		outcome = "rate_limited"
	case *AuthError:
		outcome = "auth_error"
	}
	metrics.IdentityRequests.WithLabelValues(operation, outcome).Inc()
}
