// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"testing"
)

func TestCreateAccountRejectsDuplicateEmail(t *testing.T) {
	store := NewStore()

	_, err := store.CreateAccount("coach@x.com", "secret-pw", "Coach", "coach", "UTC")
	checkNoError(t, err)

	// Same address with different casing and whitespace is the same account.
	_, err = store.CreateAccount("  Coach@X.COM ", "another-pw", "Coach", "coach", "UTC")
	checkError(t, err)
}

func TestAuthenticate(t *testing.T) {
	store := NewStore()
	acct, err := store.CreateAccount("coach@x.com", "secret-pw", "Coach", "coach", "UTC")
	checkNoError(t, err)

	if got := store.Authenticate("coach@x.com", "secret-pw"); got == nil || got.ID != acct.ID {
		t.Error("expected matching credentials to authenticate")
	}
	if store.Authenticate("coach@x.com", "wrong") != nil {
		t.Error("expected wrong password to fail")
	}
	if store.Authenticate("nobody@x.com", "secret-pw") != nil {
		t.Error("expected unknown email to fail")
	}
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	store := NewStore()
	acct, err := store.CreateAccount("coach@x.com", "secret-pw", "Coach", "coach", "UTC")
	checkNoError(t, err)

	token := store.IssueRefreshToken(acct.ID)

	if got := store.RedeemRefreshToken(token); got == nil || got.ID != acct.ID {
		t.Fatal("expected first redemption to succeed")
	}
	if store.RedeemRefreshToken(token) != nil {
		t.Error("expected second redemption to fail")
	}
}

func TestInsertStampsTimestamps(t *testing.T) {
	store := NewStore()

	conn, err := store.Insert("connections", Row{"coach_id": "c1", "status": "pending"})
	checkNoError(t, err)
	if stringField(conn, "id") == "" {
		t.Error("expected generated id")
	}
	if stringField(conn, "created_at") == "" || stringField(conn, "updated_at") == "" {
		t.Error("expected created_at and updated_at on connections")
	}

	asg, err := store.Insert("assignments", Row{"coach_id": "c1"})
	checkNoError(t, err)
	if stringField(asg, "assigned_at") == "" {
		t.Error("expected assigned_at on assignments")
	}

	_, err = store.Insert("games", Row{})
	checkError(t, err)
}

func TestSelectFilters(t *testing.T) {
	store := NewStore()
	seed := []Row{
		{"id": "1", "title": "Sicilian Defense", "type": "lesson"},
		{"id": "2", "title": "Knight fork puzzle", "type": "puzzle"},
		{"id": "3", "title": "SICILIAN endgames", "type": "lesson"},
	}
	for _, row := range seed {
		_, err := store.Insert("content", row)
		checkNoError(t, err)
	}

	tests := []struct {
		name    string
		filters []Filter
		wantIDs []string
	}{
		{"eq", []Filter{{"type", "eq", "puzzle"}}, []string{"2"}},
		{"neq", []Filter{{"type", "neq", "puzzle"}}, []string{"1", "3"}},
		{"ilike case-insensitive", []Filter{{"title", "ilike", "*sicilian*"}}, []string{"1", "3"}},
		{"conjunction", []Filter{{"type", "eq", "lesson"}, {"title", "ilike", "*endgame*"}}, []string{"3"}},
		{"no match", []Filter{{"type", "eq", "video"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.Select("content", tt.filters, nil, -1)
			checkNoError(t, err)
			checkIntEqual(t, "rows", len(rows), len(tt.wantIDs))
			for i, id := range tt.wantIDs {
				checkStringEqual(t, "id", stringField(rows[i], "id"), id)
			}
		})
	}
}

func TestSelectOrderAndLimit(t *testing.T) {
	store := NewStore()
	for _, row := range []Row{
		{"id": "1", "created_at": "2026-08-01T00:00:00Z"},
		{"id": "2", "created_at": "2026-08-03T00:00:00Z"},
		{"id": "3", "created_at": "2026-08-02T00:00:00Z"},
	} {
		_, err := store.Insert("messages", row)
		checkNoError(t, err)
	}

	rows, err := store.Select("messages", nil, &Order{Column: "created_at", Descending: true}, 2)
	checkNoError(t, err)
	checkIntEqual(t, "rows", len(rows), 2)
	checkStringEqual(t, "first", stringField(rows[0], "id"), "2")
	checkStringEqual(t, "second", stringField(rows[1], "id"), "3")
}

func TestUpdateNilValueDeletesField(t *testing.T) {
	store := NewStore()
	_, err := store.Insert("assignments", Row{"id": "a1", "status": "completed", "completed_at": "2026-08-01T00:00:00Z"})
	checkNoError(t, err)

	updated, err := store.Update("assignments",
		[]Filter{{"id", "eq", "a1"}},
		Row{"status": "assigned", "completed_at": nil},
	)
	checkNoError(t, err)
	checkIntEqual(t, "updated", len(updated), 1)
	checkStringEqual(t, "status", stringField(updated[0], "status"), "assigned")
	if _, ok := updated[0]["completed_at"]; ok {
		t.Error("expected completed_at to be removed")
	}
}

func TestDeleteByFilter(t *testing.T) {
	store := NewStore()
	for _, row := range []Row{{"id": "1", "sender_id": "u1"}, {"id": "2", "sender_id": "u2"}} {
		_, err := store.Insert("messages", row)
		checkNoError(t, err)
	}

	removed, err := store.Delete("messages", []Filter{{"sender_id", "eq", "u1"}})
	checkNoError(t, err)
	checkIntEqual(t, "removed", removed, 1)

	n, err := store.Count("messages", nil)
	checkNoError(t, err)
	checkIntEqual(t, "remaining", n, 1)
}
