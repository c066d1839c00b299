// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/session"
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

func checkContains(t *testing.T, fieldName, got, substr string) {
	t.Helper()
	if !strings.Contains(got, substr) {
		t.Errorf("%s: expected %q to contain %q", fieldName, got, substr)
	}
}

// signedInManager returns a manager holding a valid session for the given
// user.
func signedInManager(t *testing.T, userID, email string) *session.Manager {
	t.Helper()
	m := session.NewManager(session.NewMemoryStore())
	err := m.Set(&session.Session{
		AccessToken:  "token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Unix() + 3600,
		User:         session.User{ID: userID, Email: email, Role: "coach"},
	})
	checkNoError(t, err)
	return m
}

// readCall records one read issued against the fake resource.
type readCall struct {
	collection string
	query      string
}

// fakeResource is a scripted resource client. Reads are answered from
// queued row sets per collection, in order; writes are captured.
type fakeResource struct {
	reads   map[string][]interface{} // collection -> queued responses
	calls   []readCall
	inserts []interface{}
	updates []interface{}
	deletes []string
	count   int

	insertResult interface{}
	updateResult interface{}
	failWith     error
}

var _ backend.Resource = (*fakeResource)(nil)

func newFakeResource() *fakeResource {
	return &fakeResource{reads: make(map[string][]interface{})}
}

// queueRows enqueues one response for reads of a collection.
func (f *fakeResource) queueRows(collection string, rows interface{}) {
	f.reads[collection] = append(f.reads[collection], rows)
}

func (f *fakeResource) respond(collection string, q *backend.Query, out interface{}) error {
	f.calls = append(f.calls, readCall{collection: collection, query: q.Encode()})
	if f.failWith != nil {
		return f.failWith
	}
	queued := f.reads[collection]
	var rows interface{} = []interface{}{}
	if len(queued) > 0 {
		rows = queued[0]
		f.reads[collection] = queued[1:]
	}
	return reencode(rows, out)
}

func (f *fakeResource) Get(_ context.Context, collection string, q *backend.Query, out interface{}) error {
	return f.respond(collection, q, out)
}

func (f *fakeResource) GetAnonymous(_ context.Context, collection string, q *backend.Query, out interface{}) error {
	return f.respond(collection, q, out)
}

func (f *fakeResource) Insert(_ context.Context, collection string, record, out interface{}) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.inserts = append(f.inserts, record)
	if out != nil && f.insertResult != nil {
		return reencode(f.insertResult, out)
	}
	if out != nil {
		return reencode(record, out)
	}
	return nil
}

func (f *fakeResource) Update(_ context.Context, collection string, q *backend.Query, changes, out interface{}) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.updates = append(f.updates, changes)
	if out != nil && f.updateResult != nil {
		return reencode(f.updateResult, out)
	}
	return nil
}

func (f *fakeResource) Delete(_ context.Context, collection string, q *backend.Query) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.deletes = append(f.deletes, collection+"?"+q.Encode())
	return nil
}

func (f *fakeResource) Count(_ context.Context, collection string, q *backend.Query) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	return f.count, nil
}

// reencode copies a value into out through JSON, matching how the real
// client decodes responses.
func reencode(value, out interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
