// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"strings"
	"testing"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestCreateLessonDerivesStartingFEN(t *testing.T) {
	resource := newFakeResource()
	svc := NewContentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	created, err := svc.Create(context.Background(), CreateContentInput{
		Title: "Italian Game",
		Type:  ContentLesson,
		PGN:   "1. e4 e5 2. Nf3 Nc6 3. Bc4 *",
	})
	checkNoError(t, err)
	checkIntEqual(t, "inserts", len(resource.inserts), 1)

	record := resource.inserts[0].(map[string]interface{})
	checkStringEqual(t, "creator_id", record["creator_id"].(string), "coach-1")
	checkStringEqual(t, "type", record["type"].(string), ContentLesson)
	checkStringEqual(t, "derived fen", record["fen"].(string), startFEN)
	checkStringEqual(t, "title", created.Title, "Italian Game")
}

func TestCreateLessonRejectsIllegalPGN(t *testing.T) {
	resource := newFakeResource()
	svc := NewContentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	tests := []struct {
		name string
		pgn  string
	}{
		{"empty", "   "},
		{"illegal move", "1. e5 e4 *"},
		{"garbage", "definitely not chess"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), CreateContentInput{
				Title: "Bad",
				Type:  ContentLesson,
				PGN:   tt.pgn,
			})
			checkError(t, err)
		})
	}
	checkIntEqual(t, "inserts", len(resource.inserts), 0)
}

func TestCreatePuzzleValidatesFEN(t *testing.T) {
	resource := newFakeResource()
	svc := NewContentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	_, err := svc.Create(context.Background(), CreateContentInput{
		Title: "Mate in two",
		Type:  ContentPuzzle,
		FEN:   "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1",
	})
	checkNoError(t, err)

	_, err = svc.Create(context.Background(), CreateContentInput{
		Title: "Broken",
		Type:  ContentPuzzle,
		FEN:   "this is not a position",
	})
	checkError(t, err)
	if !strings.Contains(err.Error(), "FEN") {
		t.Errorf("expected FEN error, got %v", err)
	}

	checkIntEqual(t, "inserts", len(resource.inserts), 1)
	record := resource.inserts[0].(map[string]interface{})
	if _, hasPGN := record["pgn"]; hasPGN {
		t.Error("puzzles must not carry a PGN")
	}
}

func TestCreateContentRejectsUnknownType(t *testing.T) {
	svc := NewContentService(newFakeResource(), signedInManager(t, "coach-1", "c@x.com"))
	_, err := svc.Create(context.Background(), CreateContentInput{
		Title: "Opening drill",
		Type:  "video",
	})
	checkError(t, err)
}

func TestSearchBuildsIlikeFilter(t *testing.T) {
	resource := newFakeResource()
	svc := NewContentService(resource, signedInManager(t, "coach-1", "c@x.com"))

	_, err := svc.Search(context.Background(), "sicilian")
	checkNoError(t, err)
	checkIntEqual(t, "reads", len(resource.calls), 1)
	checkContains(t, "query", resource.calls[0].query, "ilike.%2Asicilian%2A")
}

func TestListByTypeRejectsUnknown(t *testing.T) {
	svc := NewContentService(newFakeResource(), signedInManager(t, "coach-1", "c@x.com"))
	_, err := svc.ListByType(context.Background(), "webinar")
	checkError(t, err)
}
