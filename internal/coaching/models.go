// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package coaching implements the domain operations of the platform:
// profiles, coach-player connections, content authoring, assignments, and
// messaging. Each service is a thin layer over the resource client; the
// remote store owns the data and enforces row-level authorization.
package coaching

import "time"

// User roles.
const (
	RoleCoach  = "coach"
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// Connection lifecycle states.
const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionRevoked  = "revoked"
)

// Content types.
const (
	ContentLesson = "lesson"
	ContentPuzzle = "puzzle"
)

// Assignment lifecycle states.
const (
	AssignmentAssigned  = "assigned"
	AssignmentCompleted = "completed"
	AssignmentSkipped   = "skipped"
)

// Profile is a user row in the users collection, distinct from the
// identity-provider record the session carries.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Timezone    string `json:"timezone,omitempty"`
}

// Connection is a coach-player relationship. PlayerID stays empty while
// the invite is pending; InviteToken is single-use and becomes irrelevant
// after acceptance.
type Connection struct {
	ID           string    `json:"id"`
	CoachID      string    `json:"coach_id"`
	PlayerID     string    `json:"player_id,omitempty"`
	Status       string    `json:"status"`
	InviteToken  string    `json:"invite_token,omitempty"`
	InvitedEmail string    `json:"invited_email,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// ConnectionWithUsers is a Connection with the coach and player profiles
// expanded by the server.
type ConnectionWithUsers struct {
	Connection
	Coach  *Profile `json:"coach,omitempty"`
	Player *Profile `json:"player,omitempty"`
}

// Content is an authored lesson or puzzle. Type determines which field is
// authoritative: lessons carry PGN plus a derived starting FEN, puzzles
// carry only a FEN position.
type Content struct {
	ID        string                 `json:"id"`
	CreatorID string                 `json:"creator_id"`
	Title     string                 `json:"title"`
	Type      string                 `json:"type"`
	PGN       string                 `json:"pgn,omitempty"`
	FEN       string                 `json:"fen,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at,omitempty"`
}

// Assignment links one Content item to one player. CoachID must equal the
// content's creator.
type Assignment struct {
	ID          string     `json:"id"`
	ContentID   string     `json:"content_id"`
	CoachID     string     `json:"coach_id"`
	PlayerID    string     `json:"player_id"`
	Status      string     `json:"status"`
	AssignedAt  time.Time  `json:"assigned_at,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AssignmentWithDetails is an Assignment with content, coach, and player
// expanded by the server.
type AssignmentWithDetails struct {
	Assignment
	Content *Content `json:"content,omitempty"`
	Coach   *Profile `json:"coach,omitempty"`
	Player  *Profile `json:"player,omitempty"`
}

// Message is one append-only record under a Connection.
type Message struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	SenderID     string    `json:"sender_id"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// IsOverdue reports whether the assignment is past its due date and still
// open. Classification only; the stored status is never auto-transitioned.
func (a *Assignment) IsOverdue(now time.Time) bool {
	if a.Status != AssignmentAssigned {
		return false
	}
	if a.DueDate == nil {
		return false
	}
	return a.DueDate.Before(now)
}
