// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/coaching"
	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/session"
)

// actor is one signed-in client stack against a devstack server.
type actor struct {
	sessions    *session.Manager
	accounts    *coaching.AccountService
	connections *coaching.ConnectionService
	messages    *coaching.MessageService
}

func newActor(t *testing.T, baseURL string) *actor {
	t.Helper()

	backendCfg := config.BackendConfig{
		URL:            baseURL,
		AnonKey:        "test-anon-key",
		RequestTimeout: 5 * time.Second,
	}
	realtimeCfg := config.RealtimeConfig{
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		ReconnectMin:      50 * time.Millisecond,
		ReconnectMax:      time.Second,
	}

	identity := backend.NewIdentityClient(baseURL, backendCfg.AnonKey, backendCfg.RequestTimeout)
	sessions := session.NewManager(session.NewMemoryStore())
	sessions.SetRefresher(identity)
	resource := backend.NewClient(backendCfg, sessions)

	return &actor{
		sessions:    sessions,
		accounts:    coaching.NewAccountService(identity, resource, sessions),
		connections: coaching.NewConnectionService(resource, sessions),
		messages:    coaching.NewMessageService(resource, sessions, backendCfg, realtimeCfg),
	}
}

func startDevstack(t *testing.T, cfg config.DevstackConfig) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func signUp(t *testing.T, a *actor, email, name, role string) *session.Session {
	t.Helper()
	sess, err := a.accounts.SignUp(context.Background(), coaching.SignUpInput{
		Email:       email,
		Password:    "correct-horse-battery",
		DisplayName: name,
		Role:        role,
	})
	checkNoError(t, err)
	return sess
}

func TestSignUpSignInRoundTrip(t *testing.T) {
	ts := startDevstack(t, testDevstackConfig())
	a := newActor(t, ts.URL)
	ctx := context.Background()

	sess := signUp(t, a, "coach@x.com", "Coach Carlsen", "coach")
	if sess.User.ID == "" {
		t.Fatal("expected a user id from signup")
	}
	checkStringEqual(t, "email", sess.User.Email, "coach@x.com")

	current, err := a.accounts.CurrentUser()
	checkNoError(t, err)
	checkStringEqual(t, "current user", current.ID, sess.User.ID)

	// A fresh sign-in resolves to the same identity.
	checkNoError(t, a.accounts.SignOut())
	again, err := a.accounts.SignIn(ctx, "coach@x.com", "correct-horse-battery")
	checkNoError(t, err)
	checkStringEqual(t, "user id", again.User.ID, sess.User.ID)

	// And the profile mirror is readable by others.
	profile, err := a.accounts.GetProfile(ctx, sess.User.ID)
	checkNoError(t, err)
	if profile == nil {
		t.Fatal("expected mirrored profile row")
	}
	checkStringEqual(t, "display name", profile.DisplayName, "Coach Carlsen")
}

func TestSignInBadPassword(t *testing.T) {
	ts := startDevstack(t, testDevstackConfig())
	a := newActor(t, ts.URL)

	signUp(t, a, "coach@x.com", "Coach", "coach")
	checkNoError(t, a.accounts.SignOut())

	_, err := a.accounts.SignIn(context.Background(), "coach@x.com", "wrong-password")
	var authErr *backend.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestInviteAcceptanceEnforcesInvitedEmail(t *testing.T) {
	ts := startDevstack(t, testDevstackConfig())
	ctx := context.Background()

	coach := newActor(t, ts.URL)
	signUp(t, coach, "coach@x.com", "Coach", "coach")

	invite, err := coach.connections.CreateInvite(ctx, "Player@X.com")
	checkNoError(t, err)
	checkStringEqual(t, "status", invite.Status, coaching.ConnectionPending)
	checkStringEqual(t, "invited email", invite.InvitedEmail, "player@x.com")
	if invite.InviteToken == "" {
		t.Fatal("expected an invite token")
	}

	// The wrong account cannot claim the invite, and the refusal names
	// the address the invite was sent to.
	stranger := newActor(t, ts.URL)
	signUp(t, stranger, "stranger@x.com", "Stranger", "player")
	_, err = stranger.connections.AcceptInvite(ctx, invite.InviteToken)
	checkError(t, err)
	if !strings.Contains(err.Error(), "player@x.com") {
		t.Errorf("expected refusal to name the invited address, got %v", err)
	}

	// The failed attempt left the invite claimable.
	pending, err := stranger.connections.GetByToken(ctx, invite.InviteToken)
	checkNoError(t, err)
	checkStringEqual(t, "status after refusal", pending.Status, coaching.ConnectionPending)

	// The invited player accepts, case-insensitively.
	player := newActor(t, ts.URL)
	playerSess := signUp(t, player, "PLAYER@x.com", "Player", "player")
	accepted, err := player.connections.AcceptInvite(ctx, invite.InviteToken)
	checkNoError(t, err)
	checkStringEqual(t, "status", accepted.Status, coaching.ConnectionAccepted)
	checkStringEqual(t, "player id", accepted.PlayerID, playerSess.User.ID)

	// A second coach invite to the same player is refused.
	_, err = coach.connections.CreateInvite(ctx, "player@x.com")
	checkError(t, err)
	if !strings.Contains(err.Error(), "already connected") {
		t.Errorf("expected already-connected refusal, got %v", err)
	}
}

func TestIdentityRateLimitSurfacesTyped(t *testing.T) {
	cfg := testDevstackConfig()
	cfg.RateLimitReqs = 2
	cfg.RateLimitWindow = time.Minute
	ts := startDevstack(t, cfg)
	a := newActor(t, ts.URL)
	ctx := context.Background()

	var rateLimited *backend.RateLimitedError
	for i := 0; i < 5; i++ {
		_, err := a.accounts.SignIn(ctx, "nobody@x.com", "whatever-pw")
		if errors.As(err, &rateLimited) {
			return
		}
	}
	t.Fatal("expected a rate limited error after repeated sign-ins")
}

// TestMessageDeliveryOverRealtime sends a message through the REST
// surface and expects the subscribed feed to deliver it over the socket,
// with the send's optimistic append and its echo collapsing to one.
func TestMessageDeliveryOverRealtime(t *testing.T) {
	ts := startDevstack(t, testDevstackConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coach := newActor(t, ts.URL)
	signUp(t, coach, "coach@x.com", "Coach", "coach")
	invite, err := coach.connections.CreateInvite(ctx, "player@x.com")
	checkNoError(t, err)

	player := newActor(t, ts.URL)
	signUp(t, player, "player@x.com", "Player", "player")
	conn, err := player.connections.AcceptInvite(ctx, invite.InviteToken)
	checkNoError(t, err)

	feed, err := player.messages.Subscribe(conn.ID)
	checkNoError(t, err)
	defer func() { _ = feed.Close() }()
	checkNoError(t, feed.Connect(ctx))

	// Give the server a moment to process the join before publishing.
	time.Sleep(200 * time.Millisecond)

	sent, err := coach.messages.Send(ctx, conn.ID, "White to play and win")
	checkNoError(t, err)

	select {
	case got := <-feed.Messages():
		checkStringEqual(t, "message id", got.ID, sent.ID)
		checkStringEqual(t, "body", got.Body, "White to play and win")
	case <-ctx.Done():
		t.Fatal("timed out waiting for realtime delivery")
	}

	// The echo of the same insert must not deliver twice.
	feed.Append(*sent)
	select {
	case dup := <-feed.Messages():
		t.Fatalf("unexpected duplicate delivery: %+v", dup)
	case <-time.After(300 * time.Millisecond):
	}
}
