// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"testing"
	"time"
)

func TestAssignmentIsOverdue(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name       string
		status     string
		dueDate    *time.Time
		wantResult bool
	}{
		{"past due and assigned", AssignmentAssigned, &past, true},
		{"future due", AssignmentAssigned, &future, false},
		{"no due date", AssignmentAssigned, nil, false},
		{"past due but completed", AssignmentCompleted, &past, false},
		{"past due but skipped", AssignmentSkipped, &past, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assignment{Status: tt.status, DueDate: tt.dueDate}
			if got := a.IsOverdue(now); got != tt.wantResult {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.wantResult)
			}
		})
	}
}

func TestOverdueClassificationDoesNotMutateStatus(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	rows := []AssignmentWithDetails{
		{Assignment: Assignment{ID: "a1", Status: AssignmentAssigned, DueDate: &past}},
		{Assignment: Assignment{ID: "a2", Status: AssignmentAssigned}},
		{Assignment: Assignment{ID: "a3", Status: AssignmentCompleted, DueDate: &past}},
	}

	resource := newFakeResource()
	svc := NewAssignmentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	overdue := svc.Overdue(rows)
	checkIntEqual(t, "overdue count", len(overdue), 1)
	checkStringEqual(t, "overdue id", overdue[0].ID, "a1")

	// Classification leaves the stored status untouched: nothing was
	// written and the row still reads "assigned".
	checkIntEqual(t, "updates issued", len(resource.updates), 0)
	checkStringEqual(t, "status unchanged", overdue[0].Status, AssignmentAssigned)
}

func TestCreateAssignmentChecksOwnership(t *testing.T) {
	resource := newFakeResource()
	resource.queueRows("content", []Content{{ID: "11111111-2222-4333-8444-555555555555", CreatorID: "someone-else"}})
	svc := NewAssignmentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	_, err := svc.Create(context.Background(), CreateAssignmentInput{
		ContentID: "11111111-2222-4333-8444-555555555555",
		PlayerID:  "99999999-8888-4777-8666-555555555555",
	})
	checkError(t, err)
	checkContains(t, "error", err.Error(), "author")
	checkIntEqual(t, "inserts", len(resource.inserts), 0)
}

func TestCreateAssignmentStampsCoachAndStatus(t *testing.T) {
	resource := newFakeResource()
	resource.queueRows("content", []Content{{ID: "11111111-2222-4333-8444-555555555555", CreatorID: "coach-1"}})
	svc := NewAssignmentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), CreateAssignmentInput{
		ContentID: "11111111-2222-4333-8444-555555555555",
		PlayerID:  "99999999-8888-4777-8666-555555555555",
		DueDate:   &due,
	})
	checkNoError(t, err)
	checkIntEqual(t, "inserts", len(resource.inserts), 1)

	record := resource.inserts[0].(map[string]interface{})
	checkStringEqual(t, "coach_id", record["coach_id"].(string), "coach-1")
	checkStringEqual(t, "status", record["status"].(string), AssignmentAssigned)
	checkStringEqual(t, "due_date", record["due_date"].(string), "2026-09-15T00:00:00Z")
}

func TestCreateAssignmentValidatesInput(t *testing.T) {
	resource := newFakeResource()
	svc := NewAssignmentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	_, err := svc.Create(context.Background(), CreateAssignmentInput{
		ContentID: "not-a-uuid",
		PlayerID:  "also-not",
	})
	checkError(t, err)
	checkIntEqual(t, "reads issued", len(resource.calls), 0)
}

func TestUpdateStatusStampsCompletedAt(t *testing.T) {
	resource := newFakeResource()
	resource.updateResult = Assignment{ID: "a1", Status: AssignmentCompleted}
	svc := NewAssignmentService(resource, signedInManager(t, "coach-1", "c@x.com"))
	svc.now = func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) }

	_, err := svc.MarkCompleted(context.Background(), "a1")
	checkNoError(t, err)

	changes := resource.updates[0].(map[string]interface{})
	checkStringEqual(t, "status", changes["status"].(string), AssignmentCompleted)
	checkStringEqual(t, "completed_at", changes["completed_at"].(string), "2026-08-29T10:00:00Z")
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	svc := NewAssignmentService(newFakeResource(), signedInManager(t, "coach-1", "c@x.com"))
	_, err := svc.UpdateStatus(context.Background(), "a1", "procrastinated")
	checkError(t, err)
}
