// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"fmt"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/session"
	"github.com/coachess/coachess/internal/validation"
)

// AccountService handles registration, login, and profile management. It
// owns persisting the session after identity calls and mirroring the
// identity record into the users collection.
type AccountService struct {
	identity *backend.IdentityClient
	resource backend.Resource
	sessions *session.Manager
}

// NewAccountService creates an account service.
func NewAccountService(identity *backend.IdentityClient, resource backend.Resource, sessions *session.Manager) *AccountService {
	return &AccountService{
		identity: identity,
		resource: resource,
		sessions: sessions,
	}
}

// SignUpInput is validated before any network call.
type SignUpInput struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=8"`
	DisplayName string `validate:"required,max=100"`
	Role        string `validate:"required,oneof=coach player"`
	Timezone    string `validate:"omitempty,max=64"`
}

// SignUp registers a new account, persists the returned session, and
// mirrors the profile into the users collection so other users can expand
// it in queries. The mirror write is best-effort when the backend creates
// the row itself via a trigger.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*session.Session, error) {
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	sess, err := s.identity.SignUp(ctx, backend.SignUpParams{
		Email:       in.Email,
		Password:    in.Password,
		DisplayName: in.DisplayName,
		Role:        in.Role,
		Timezone:    in.Timezone,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Set(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	profile := Profile{
		ID:          sess.User.ID,
		Email:       sess.User.Email,
		DisplayName: in.DisplayName,
		Role:        in.Role,
		Timezone:    in.Timezone,
	}
	if err := s.resource.Insert(ctx, "users", profile, nil); err != nil {
		// The row may already exist when the backend mirrors identities
		// itself. The account is usable either way.
		logging.Warn().Err(err).Str("user_id", sess.User.ID).Msg("profile mirror insert failed")
	}

	return sess, nil
}

// SignIn exchanges credentials for a session and persists it.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	sess, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Set(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// SignOut clears the persisted session. No server call is required.
func (s *AccountService) SignOut() error {
	return s.sessions.Clear()
}

// CurrentUser returns the authenticated user's summary from the session.
func (s *AccountService) CurrentUser() (*session.User, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	u := sess.User
	return &u, nil
}

// GetProfile fetches a user's profile row.
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var rows []Profile
	q := backend.NewQuery().Eq("id", userID).Limit(1)
	if err := s.resource.Get(ctx, "users", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left
// untouched.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// UpdateProfile patches the current user's profile row and returns the
// updated profile.
func (s *AccountService) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}

	var updated Profile
	q := backend.NewQuery().Eq("id", sess.User.ID)
	if err := s.resource.Update(ctx, "users", q, update, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// RequestPasswordReset asks the identity endpoint to send a reset email.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.identity.RecoverPassword(ctx, email)
}

// ChangePassword sets a new password for the authenticated user.
func (s *AccountService) ChangePassword(ctx context.Context, newPassword string) error {
	sess, err := s.sessions.Require()
	if err != nil {
		return err
	}
	return s.identity.UpdatePassword(ctx, sess.AccessToken, newPassword)
}
