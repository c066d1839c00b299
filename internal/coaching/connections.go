// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/session"
)

// connectionExpansion asks the server to expand both related profiles.
const connectionExpansion = "*,coach:users!coach_id(*),player:users!player_id(*)"

// ConnectionService manages coach-player relationships and the invite flow.
type ConnectionService struct {
	resource backend.Resource
	sessions *session.Manager
}

// NewConnectionService creates a connection service.
func NewConnectionService(resource backend.Resource, sessions *session.Manager) *ConnectionService {
	return &ConnectionService{resource: resource, sessions: sessions}
}

// newInviteToken returns a random, URL-safe single-use token.
func newInviteToken() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateInvite creates a pending connection carrying a single-use token for
// the invited player. The player_id stays empty until acceptance.
//
// An existing accepted or pending connection for the same invited email is
// rejected so one coach cannot stack invites on one player.
func (s *ConnectionService) CreateInvite(ctx context.Context, playerEmail string) (*Connection, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(playerEmail))
	if email == "" {
		return nil, fmt.Errorf("player email is required")
	}

	var existing []Connection
	q := backend.NewQuery().Eq("coach_id", sess.User.ID).Eq("invited_email", email)
	if err := s.resource.Get(ctx, "connections", q, &existing); err != nil {
		return nil, err
	}
	for i := range existing {
		switch existing[i].Status {
		case ConnectionAccepted:
			return nil, fmt.Errorf("already connected to %s", email)
		case ConnectionPending:
			return nil, fmt.Errorf("a pending invite for %s already exists, share the existing invite link", email)
		}
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"coach_id":      sess.User.ID,
		"status":        ConnectionPending,
		"invite_token":  token,
		"invited_email": email,
	}

	var created Connection
	if err := s.resource.Insert(ctx, "connections", record, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetByToken looks up a connection by invite token. Anonymous: the invited
// player follows the link before logging in. Returns nil when the token
// matches nothing.
func (s *ConnectionService) GetByToken(ctx context.Context, inviteToken string) (*ConnectionWithUsers, error) {
	var rows []ConnectionWithUsers
	q := backend.NewQuery().Eq("invite_token", inviteToken).Select(connectionExpansion)
	if err := s.resource.GetAnonymous(ctx, "connections", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// AcceptInvite accepts a pending invite as the authenticated player.
//
// The session email must match the invited email; a mismatch fails with an
// error naming the invited address and leaves the connection pending. An
// already-accepted connection between the pair is also rejected, keeping
// at most one accepted connection per coach-player pair.
func (s *ConnectionService) AcceptInvite(ctx context.Context, inviteToken string) (*Connection, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	if sess.User.Email == "" {
		return nil, fmt.Errorf("session has no email, sign in again")
	}

	var rows []Connection
	q := backend.NewQuery().Eq("invite_token", inviteToken)
	if err := s.resource.GetAnonymous(ctx, "connections", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("invite not found")
	}
	invite := rows[0]

	if invite.InvitedEmail != "" &&
		!strings.EqualFold(invite.InvitedEmail, sess.User.Email) {
		return nil, fmt.Errorf("this invite was sent to %s, sign in with that email address", invite.InvitedEmail)
	}

	var accepted []Connection
	pairQ := backend.NewQuery().
		Eq("coach_id", invite.CoachID).
		Eq("player_id", sess.User.ID).
		Eq("status", ConnectionAccepted).
		Select("id")
	if err := s.resource.Get(ctx, "connections", pairQ, &accepted); err != nil {
		return nil, err
	}
	if len(accepted) > 0 {
		return nil, fmt.Errorf("already connected to this coach")
	}

	changes := map[string]interface{}{
		"player_id": sess.User.ID,
		"status":    ConnectionAccepted,
	}
	var updated Connection
	updateQ := backend.NewQuery().Eq("invite_token", inviteToken)
	if err := s.resource.Update(ctx, "connections", updateQ, changes, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// List returns the current user's connections, newest first, with both
// profiles expanded. The server's row policies scope the result to rows
// the caller participates in.
func (s *ConnectionService) List(ctx context.Context) ([]ConnectionWithUsers, error) {
	var rows []ConnectionWithUsers
	q := backend.NewQuery().Select(connectionExpansion).OrderDesc("created_at")
	if err := s.resource.Get(ctx, "connections", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAsCoach returns connections where the current user is the coach.
func (s *ConnectionService) ListAsCoach(ctx context.Context) ([]ConnectionWithUsers, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	var rows []ConnectionWithUsers
	q := backend.NewQuery().
		Eq("coach_id", sess.User.ID).
		Select(connectionExpansion).
		OrderDesc("created_at")
	if err := s.resource.Get(ctx, "connections", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Get fetches a single connection by id, nil when absent.
func (s *ConnectionService) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var rows []Connection
	q := backend.NewQuery().Eq("id", connectionID)
	if err := s.resource.Get(ctx, "connections", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Revoke marks a connection revoked. Either side may revoke.
func (s *ConnectionService) Revoke(ctx context.Context, connectionID string) error {
	changes := map[string]interface{}{"status": ConnectionRevoked}
	q := backend.NewQuery().Eq("id", connectionID)
	return s.resource.Update(ctx, "connections", q, changes, nil)
}

// Delete removes a connection permanently.
func (s *ConnectionService) Delete(ctx context.Context, connectionID string) error {
	q := backend.NewQuery().Eq("id", connectionID)
	return s.resource.Delete(ctx, "connections", q)
}
