// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/coachess/coachess/internal/logging"
)

// authUser is the identity record shape returned inside token responses.
type authUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
}

type userMetadata struct {
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// tokenResponse is the session shape all identity grants return.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         authUser `json:"user"`
}

type signUpRequest struct {
	Email    string                 `json:"email"`
	Password string                 `json:"password"`
	Data     map[string]interface{} `json:"data"`
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

type updateUserRequest struct {
	Password string `json:"password"`
}

// signToken mints an HS256 access token for the account.
func (s *Server) signToken(acct *account, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   acct.ID,
		"email": acct.Email,
		"role":  "authenticated",
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// verifyToken validates a bearer token and returns the subject account id.
func (s *Server) verifyToken(raw string) (string, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// session builds a full token response for the account.
func (s *Server) session(acct *account) (*tokenResponse, error) {
	expiresAt := time.Now().Add(s.cfg.TokenTTL)
	access, err := s.signToken(acct, expiresAt)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		RefreshToken: s.store.IssueRefreshToken(acct.ID),
		ExpiresIn:    int64(s.cfg.TokenTTL.Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		User: authUser{
			ID:    acct.ID,
			Email: acct.Email,
			UserMetadata: userMetadata{
				DisplayName: acct.DisplayName,
				Role:        acct.Role,
				Timezone:    acct.Timezone,
			},
		},
	}, nil
}

// handleSignUp registers an account and returns a session. Accounts are
// auto-confirmed: there is no email verification loop locally.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || len(req.Password) < 6 {
		writeAuthError(w, http.StatusUnprocessableEntity, "signup requires an email and a password of at least 6 characters")
		return
	}

	meta := func(key string) string {
		if v, ok := req.Data[key].(string); ok {
			return v
		}
		return ""
	}

	acct, err := s.store.CreateAccount(req.Email, req.Password, meta("display_name"), meta("role"), meta("timezone"))
	if err != nil {
		writeAuthError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := s.session(acct)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleToken dispatches on grant_type: password or refresh_token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.handlePasswordGrant(w, r)
	case "refresh_token":
		s.handleRefreshGrant(w, r)
	default:
		writeAuthError(w, http.StatusBadRequest, "unsupported grant type")
	}
}

func (s *Server) handlePasswordGrant(w http.ResponseWriter, r *http.Request) {
	var req passwordGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct := s.store.Authenticate(req.Email, req.Password)
	if acct == nil {
		writeAuthError(w, http.StatusBadRequest, "Invalid login credentials")
		return
	}

	resp, err := s.session(acct)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	var req refreshGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct := s.store.RedeemRefreshToken(req.RefreshToken)
	if acct == nil {
		writeAuthError(w, http.StatusBadRequest, "Invalid refresh token")
		return
	}

	resp, err := s.session(acct)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRecover acknowledges a reset request. There is no mail locally;
// the response never reveals whether the email exists.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	logging.Info().Str("email", req.Email).Msg("password recovery requested")
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleUpdateUser changes the authenticated account's password.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.requireBearer(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Password) < 6 {
		writeAuthError(w, http.StatusUnprocessableEntity, "password must be at least 6 characters")
		return
	}

	if err := s.store.SetPassword(accountID, req.Password); err != nil {
		writeAuthError(w, http.StatusNotFound, err.Error())
		return
	}

	acct := s.store.AccountByID(accountID)
	writeJSON(w, http.StatusOK, authUser{
		ID:    acct.ID,
		Email: acct.Email,
		UserMetadata: userMetadata{
			DisplayName: acct.DisplayName,
			Role:        acct.Role,
			Timezone:    acct.Timezone,
		},
	})
}

// requireBearer verifies the Authorization header, writing a 401 when it
// is missing or invalid.
func (s *Server) requireBearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	accountID, err := s.verifyToken(token)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
		return "", false
	}
	return accountID, true
}

// writeAuthError writes the identity endpoint's error body shape.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error_description": message,
		"msg":               message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("devstack response encode failed")
	}
}
