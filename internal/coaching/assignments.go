// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"fmt"
	"time"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/session"
	"github.com/coachess/coachess/internal/validation"
)

// assignmentExpansion expands content, coach, and player on list reads.
const assignmentExpansion = "*,content(*),coach:users!coach_id(*),player:users!player_id(*)"

// AssignmentService manages content assignments from coaches to players.
type AssignmentService struct {
	resource backend.Resource
	sessions *session.Manager
	now      func() time.Time
}

// NewAssignmentService creates an assignment service.
func NewAssignmentService(resource backend.Resource, sessions *session.Manager) *AssignmentService {
	return &AssignmentService{
		resource: resource,
		sessions: sessions,
		now:      time.Now,
	}
}

// CreateAssignmentInput is validated before any network call.
type CreateAssignmentInput struct {
	ContentID string     `validate:"required,uuid4"`
	PlayerID  string     `validate:"required,uuid4"`
	DueDate   *time.Time `validate:"-"`
}

// Create assigns a content item to a player. The coach is the current
// user and must own the content; ownership is checked before the insert
// so the failure names the actual problem instead of a policy denial.
func (s *AssignmentService) Create(ctx context.Context, in CreateAssignmentInput) (*Assignment, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	var content []Content
	q := backend.NewQuery().Eq("id", in.ContentID).Select("id,creator_id").Limit(1)
	if err := s.resource.Get(ctx, "content", q, &content); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("content %s not found", in.ContentID)
	}
	if content[0].CreatorID != sess.User.ID {
		return nil, fmt.Errorf("only the content's author can assign it")
	}

	record := map[string]interface{}{
		"content_id": in.ContentID,
		"coach_id":   sess.User.ID,
		"player_id":  in.PlayerID,
		"status":     AssignmentAssigned,
	}
	if in.DueDate != nil {
		record["due_date"] = in.DueDate.UTC().Format(time.RFC3339)
	}

	var created Assignment
	if err := s.resource.Insert(ctx, "assignments", record, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// List returns the current user's assignments, newest first, whether they
// are the coach or the player on each row.
func (s *AssignmentService) List(ctx context.Context) ([]AssignmentWithDetails, error) {
	var rows []AssignmentWithDetails
	q := backend.NewQuery().Select(assignmentExpansion).OrderDesc("assigned_at")
	if err := s.resource.Get(ctx, "assignments", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAsCoach returns assignments created by the current user.
func (s *AssignmentService) ListAsCoach(ctx context.Context) ([]AssignmentWithDetails, error) {
	return s.listFor(ctx, "coach_id")
}

// ListAsPlayer returns assignments directed at the current user.
func (s *AssignmentService) ListAsPlayer(ctx context.Context) ([]AssignmentWithDetails, error) {
	return s.listFor(ctx, "player_id")
}

func (s *AssignmentService) listFor(ctx context.Context, column string) ([]AssignmentWithDetails, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	var rows []AssignmentWithDetails
	q := backend.NewQuery().
		Eq(column, sess.User.ID).
		Select(assignmentExpansion).
		OrderDesc("assigned_at")
	if err := s.resource.Get(ctx, "assignments", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByStatus returns the current user's assignments in one status.
func (s *AssignmentService) ListByStatus(ctx context.Context, status string) ([]AssignmentWithDetails, error) {
	if err := validStatus(status); err != nil {
		return nil, err
	}
	var rows []AssignmentWithDetails
	q := backend.NewQuery().
		Eq("status", status).
		Select(assignmentExpansion).
		OrderDesc("assigned_at")
	if err := s.resource.Get(ctx, "assignments", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Get fetches one assignment with details, nil when absent.
func (s *AssignmentService) Get(ctx context.Context, id string) (*AssignmentWithDetails, error) {
	var rows []AssignmentWithDetails
	q := backend.NewQuery().Eq("id", id).Select(assignmentExpansion).Limit(1)
	if err := s.resource.Get(ctx, "assignments", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// MarkCompleted transitions an assignment to completed with a completion
// timestamp. Player side.
func (s *AssignmentService) MarkCompleted(ctx context.Context, id string) (*Assignment, error) {
	return s.UpdateStatus(ctx, id, AssignmentCompleted)
}

// UpdateStatus sets an assignment's status. Completing stamps
// completed_at; any other transition clears it.
func (s *AssignmentService) UpdateStatus(ctx context.Context, id, status string) (*Assignment, error) {
	if err := validStatus(status); err != nil {
		return nil, err
	}

	changes := map[string]interface{}{"status": status}
	if status == AssignmentCompleted {
		changes["completed_at"] = s.now().UTC().Format(time.RFC3339)
	} else {
		changes["completed_at"] = nil
	}

	var updated Assignment
	q := backend.NewQuery().Eq("id", id)
	if err := s.resource.Update(ctx, "assignments", q, changes, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an assignment. Coach side.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	q := backend.NewQuery().Eq("id", id)
	return s.resource.Delete(ctx, "assignments", q)
}

// Overdue filters the given assignments to those past their due date and
// still open. Classification is client-side so the stored status stays
// "assigned".
func (s *AssignmentService) Overdue(assignments []AssignmentWithDetails) []AssignmentWithDetails {
	now := s.now()
	var overdue []AssignmentWithDetails
	for i := range assignments {
		if assignments[i].IsOverdue(now) {
			overdue = append(overdue, assignments[i])
		}
	}
	return overdue
}

func validStatus(status string) error {
	switch status {
	case AssignmentAssigned, AssignmentCompleted, AssignmentSkipped:
		return nil
	}
	return fmt.Errorf("unknown assignment status %q", status)
}
