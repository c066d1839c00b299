// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package devstack runs a self-contained local backend speaking the same
// wire surfaces the hosted platform speaks: the identity endpoints under
// /auth/v1, the per-collection REST surface under /rest/v1, and the
// realtime socket under /realtime/v1. It backs onto in-memory tables and
// exists for local development and end-to-end tests, not production.
package devstack

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Row is one record in a collection.
type Row map[string]interface{}

// clone returns a shallow copy so handler output can't alias store state.
func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// account is an identity-provider record, separate from the users
// collection row that mirrors it.
type account struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Role         string
	Timezone     string
}

// Store holds all devstack state: accounts, refresh tokens, and the
// domain collections.
type Store struct {
	mu            sync.RWMutex
	accounts      map[string]*account // keyed by lowercase email
	refreshTokens map[string]string   // refresh token -> account id
	tables        map[string][]Row
}

// Collections served by the REST surface.
var collections = []string{"users", "connections", "content", "assignments", "messages"}

// NewStore creates an empty store.
func NewStore() *Store {
	tables := make(map[string][]Row, len(collections))
	for _, c := range collections {
		tables[c] = nil
	}
	return &Store{
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		tables:        tables,
	}
}

// CreateAccount registers an identity. Fails when the email is taken.
func (s *Store) CreateAccount(email, password, displayName, role, timezone string) (*account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[email]; exists {
		return nil, fmt.Errorf("user already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct := &account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         role,
		Timezone:     timezone,
	}
	s.accounts[email] = acct
	return acct, nil
}

// Authenticate verifies credentials, returning nil on mismatch.
func (s *Store) Authenticate(email, password string) *account {
	s.mu.RLock()
	acct := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()

	if acct == nil {
		return nil
	}
	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)) != nil {
		return nil
	}
	return acct
}

// AccountByID finds an account by id, nil when absent.
func (s *Store) AccountByID(id string) *account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if acct.ID == id {
			return acct
		}
	}
	return nil
}

// SetPassword replaces an account's password hash.
func (s *Store) SetPassword(accountID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.ID == accountID {
			acct.PasswordHash = hash
			return nil
		}
	}
	return fmt.Errorf("account not found")
}

// IssueRefreshToken mints a refresh token bound to an account.
func (s *Store) IssueRefreshToken(accountID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[token] = accountID
	s.mu.Unlock()
	return token
}

// RedeemRefreshToken consumes a refresh token, returning the account it
// was bound to. Tokens are single-use; redemption rotates.
func (s *Store) RedeemRefreshToken(token string) *account {
	s.mu.Lock()
	accountID, ok := s.refreshTokens[token]
	if ok {
		delete(s.refreshTokens, token)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.AccountByID(accountID)
}

// Insert appends a row to a collection, stamping id and timestamps the
// way the hosted store would.
func (s *Store) Insert(collection string, row Row) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[collection]; !ok {
		return nil, fmt.Errorf("relation %q does not exist", collection)
	}

	row = row.clone()
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	switch collection {
	case "assignments":
		row["assigned_at"] = now
	case "connections":
		row["created_at"] = now
		row["updated_at"] = now
	default:
		if _, ok := row["created_at"]; !ok {
			row["created_at"] = now
		}
	}

	s.tables[collection] = append(s.tables[collection], row)
	return row.clone(), nil
}

// Select returns the rows of a collection matching the filters, ordered
// and truncated as requested.
func (s *Store) Select(collection string, filters []Filter, order *Order, limit int) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[collection]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", collection)
	}

	var out []Row
	for _, row := range rows {
		if matchAll(row, filters) {
			out = append(out, row.clone())
		}
	}

	if order != nil {
		sortRows(out, order)
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update patches every matching row and returns the updated rows.
func (s *Store) Update(collection string, filters []Filter, changes Row) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[collection]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", collection)
	}

	var updated []Row
	for i := range rows {
		if !matchAll(rows[i], filters) {
			continue
		}
		for k, v := range changes {
			if v == nil {
				delete(rows[i], k)
				continue
			}
			rows[i][k] = v
		}
		if collection == "connections" {
			rows[i]["updated_at"] = time.Now().UTC().Format(time.RFC3339)
		}
		updated = append(updated, rows[i].clone())
	}
	return updated, nil
}

// Delete removes every matching row, returning how many went away.
func (s *Store) Delete(collection string, filters []Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[collection]
	if !ok {
		return 0, fmt.Errorf("relation %q does not exist", collection)
	}

	kept := rows[:0]
	removed := 0
	for _, row := range rows {
		if matchAll(row, filters) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[collection] = kept
	return removed, nil
}

// Count returns how many rows match the filters.
func (s *Store) Count(collection string, filters []Filter) (int, error) {
	rows, err := s.Select(collection, filters, nil, -1)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Lookup finds one related row by column equality, for expansions.
func (s *Store) Lookup(collection, column, value string) Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.tables[collection] {
		if stringField(row, column) == value {
			return row.clone()
		}
	}
	return nil
}

// Filter is one column predicate parsed from a query parameter.
type Filter struct {
	Column string
	Op     string // eq, neq, ilike
	Value  string
}

// Order is a single-column sort.
type Order struct {
	Column     string
	Descending bool
}

func matchAll(row Row, filters []Filter) bool {
	for _, f := range filters {
		if !match(row, f) {
			return false
		}
	}
	return true
}

func match(row Row, f Filter) bool {
	got := stringField(row, f.Column)
	switch f.Op {
	case "eq":
		return got == f.Value
	case "neq":
		return got != f.Value
	case "ilike":
		pattern := strings.ToLower(strings.Trim(f.Value, "*"))
		return strings.Contains(strings.ToLower(got), pattern)
	}
	return false
}

func sortRows(rows []Row, order *Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		a := stringField(rows[i], order.Column)
		b := stringField(rows[j], order.Column)
		if order.Descending {
			return a > b
		}
		return a < b
	})
}

// stringField renders a row field for comparison. Absent fields compare
// as the empty string, matching how nullable columns filter.
func stringField(row Row, column string) string {
	v, ok := row[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
