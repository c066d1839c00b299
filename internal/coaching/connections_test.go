// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"testing"
)

func TestCreateInvite(t *testing.T) {
	resource := newFakeResource()
	resource.queueRows("connections", []Connection{}) // no existing invite
	svc := NewConnectionService(resource, signedInManager(t, "coach-1", "coach@example.com"))

	conn, err := svc.CreateInvite(context.Background(), "  Player@Example.COM ")
	checkNoError(t, err)

	checkStringEqual(t, "invited email", conn.InvitedEmail, "player@example.com")
	checkStringEqual(t, "status", conn.Status, ConnectionPending)
	if conn.InviteToken == "" {
		t.Fatal("expected an invite token")
	}
	checkIntEqual(t, "inserts", len(resource.inserts), 1)
}

func TestCreateInviteRejectsExisting(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr string
	}{
		{"already accepted", ConnectionAccepted, "already connected"},
		{"already pending", ConnectionPending, "pending invite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resource := newFakeResource()
			resource.queueRows("connections", []Connection{{
				ID:           "conn-1",
				CoachID:      "coach-1",
				Status:       tt.status,
				InvitedEmail: "player@example.com",
			}})
			svc := NewConnectionService(resource, signedInManager(t, "coach-1", "coach@example.com"))

			_, err := svc.CreateInvite(context.Background(), "player@example.com")
			checkError(t, err)
			checkContains(t, "error", err.Error(), tt.wantErr)
			checkIntEqual(t, "inserts", len(resource.inserts), 0)
		})
	}
}

func TestAcceptInviteEmailMismatch(t *testing.T) {
	resource := newFakeResource()
	resource.queueRows("connections", []Connection{{
		ID:           "conn-1",
		CoachID:      "coach-1",
		Status:       ConnectionPending,
		InviteToken:  "tok-1",
		InvitedEmail: "p@test.com",
	}})
	svc := NewConnectionService(resource, signedInManager(t, "player-2", "other@test.com"))

	_, err := svc.AcceptInvite(context.Background(), "tok-1")
	checkError(t, err)

	// The error names the invited address, and no update was attempted.
	checkContains(t, "error", err.Error(), "p@test.com")
	checkIntEqual(t, "updates", len(resource.updates), 0)
}

func TestAcceptInviteCaseInsensitiveEmail(t *testing.T) {
	resource := newFakeResource()
	resource.queueRows("connections", []Connection{{
		ID:           "conn-1",
		CoachID:      "coach-1",
		Status:       ConnectionPending,
		InviteToken:  "tok-1",
		InvitedEmail: "P@Test.com",
	}})
	resource.queueRows("connections", []Connection{}) // no accepted pair yet
	resource.updateResult = Connection{
		ID:       "conn-1",
		CoachID:  "coach-1",
		PlayerID: "player-1",
		Status:   ConnectionAccepted,
	}
	svc := NewConnectionService(resource, signedInManager(t, "player-1", "p@test.com"))

	conn, err := svc.AcceptInvite(context.Background(), "tok-1")
	checkNoError(t, err)
	checkStringEqual(t, "status", conn.Status, ConnectionAccepted)
	checkIntEqual(t, "updates", len(resource.updates), 1)
}

func TestAcceptInviteAlreadyConnected(t *testing.T) {
	resource := newFakeResource()
	resource.queueRows("connections", []Connection{{
		ID:           "conn-1",
		CoachID:      "coach-1",
		Status:       ConnectionPending,
		InviteToken:  "tok-1",
		InvitedEmail: "p@test.com",
	}})
	resource.queueRows("connections", []Connection{{ID: "conn-0"}}) // accepted pair exists
	svc := NewConnectionService(resource, signedInManager(t, "player-1", "p@test.com"))

	_, err := svc.AcceptInvite(context.Background(), "tok-1")
	checkError(t, err)
	checkContains(t, "error", err.Error(), "already connected")
	checkIntEqual(t, "updates", len(resource.updates), 0)
}

func TestAcceptInviteUnknownToken(t *testing.T) {
	resource := newFakeResource()
	svc := NewConnectionService(resource, signedInManager(t, "player-1", "p@test.com"))

	_, err := svc.AcceptInvite(context.Background(), "missing")
	checkError(t, err)
	checkContains(t, "error", err.Error(), "not found")
}

func TestGetByTokenAbsent(t *testing.T) {
	resource := newFakeResource()
	svc := NewConnectionService(resource, signedInManager(t, "u1", "u@x.com"))

	conn, err := svc.GetByToken(context.Background(), "missing")
	checkNoError(t, err)
	if conn != nil {
		t.Fatalf("expected nil connection, got %+v", conn)
	}
}

func TestRevokeConnection(t *testing.T) {
	resource := newFakeResource()
	svc := NewConnectionService(resource, signedInManager(t, "coach-1", "c@x.com"))

	checkNoError(t, svc.Revoke(context.Background(), "conn-1"))
	checkIntEqual(t, "updates", len(resource.updates), 1)

	changes := resource.updates[0].(map[string]interface{})
	checkStringEqual(t, "status change", changes["status"].(string), ConnectionRevoked)
}
