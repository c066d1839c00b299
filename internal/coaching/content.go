// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/session"
	"github.com/coachess/coachess/internal/validation"
)

// ContentService manages authored lessons and puzzles. Chess material is
// validated against the rules engine before it is stored: a lesson's PGN
// must replay cleanly and a puzzle's FEN must be a legal position.
type ContentService struct {
	resource backend.Resource
	sessions *session.Manager
}

// NewContentService creates a content service.
func NewContentService(resource backend.Resource, sessions *session.Manager) *ContentService {
	return &ContentService{resource: resource, sessions: sessions}
}

// CreateContentInput is validated before any network call.
type CreateContentInput struct {
	Title    string                 `validate:"required,max=200"`
	Type     string                 `validate:"required,oneof=lesson puzzle"`
	PGN      string                 `validate:"-"`
	FEN      string                 `validate:"-"`
	Metadata map[string]interface{} `validate:"-"`
}

// Create stores a new content item owned by the current user.
//
// Lessons require a PGN; the starting FEN snapshot is derived from it so
// the board can render without replaying the moves. Puzzles require a FEN
// and carry no move list.
func (s *ContentService) Create(ctx context.Context, in CreateContentInput) (*Content, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"creator_id": sess.User.ID,
		"title":      in.Title,
		"type":       in.Type,
	}
	if in.Metadata != nil {
		record["metadata"] = in.Metadata
	}

	switch in.Type {
	case ContentLesson:
		startFEN, err := validateLessonPGN(in.PGN)
		if err != nil {
			return nil, err
		}
		record["pgn"] = in.PGN
		record["fen"] = startFEN
	case ContentPuzzle:
		if err := validatePuzzleFEN(in.FEN); err != nil {
			return nil, err
		}
		record["fen"] = in.FEN
	}

	var created Content
	if err := s.resource.Insert(ctx, "content", record, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// validateLessonPGN replays the PGN against the rules engine and returns
// the starting position's FEN.
func validateLessonPGN(pgn string) (string, error) {
	if strings.TrimSpace(pgn) == "" {
		return "", fmt.Errorf("a lesson requires a PGN move list")
	}
	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return "", fmt.Errorf("invalid PGN: %w", err)
	}
	game := chess.NewGame(opt)
	positions := game.Positions()
	if len(positions) == 0 {
		return "", fmt.Errorf("invalid PGN: no positions")
	}
	return positions[0].String(), nil
}

// validatePuzzleFEN checks the position parses under the rules engine.
func validatePuzzleFEN(fen string) error {
	if strings.TrimSpace(fen) == "" {
		return fmt.Errorf("a puzzle requires a FEN position")
	}
	if _, err := chess.FEN(fen); err != nil {
		return fmt.Errorf("invalid FEN: %w", err)
	}
	return nil
}

// UpdateContentInput carries the mutable content fields. Nil fields are
// left untouched.
type UpdateContentInput struct {
	Title    *string                `json:"title,omitempty"`
	PGN      *string                `json:"pgn,omitempty"`
	FEN      *string                `json:"fen,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Update patches a content item and returns the updated row. Replacement
// chess material is validated the same way Create validates it.
func (s *ContentService) Update(ctx context.Context, id string, in UpdateContentInput) (*Content, error) {
	if in.PGN != nil {
		startFEN, err := validateLessonPGN(*in.PGN)
		if err != nil {
			return nil, err
		}
		if in.FEN == nil {
			in.FEN = &startFEN
		}
	}
	if in.FEN != nil && in.PGN == nil {
		if err := validatePuzzleFEN(*in.FEN); err != nil {
			return nil, err
		}
	}

	var updated Content
	q := backend.NewQuery().Eq("id", id)
	if err := s.resource.Update(ctx, "content", q, in, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListMine returns content authored by the current user, newest first.
func (s *ContentService) ListMine(ctx context.Context) ([]Content, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}
	var rows []Content
	q := backend.NewQuery().Eq("creator_id", sess.User.ID).OrderDesc("created_at")
	if err := s.resource.Get(ctx, "content", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Get fetches one content item by id, nil when absent.
func (s *ContentService) Get(ctx context.Context, id string) (*Content, error) {
	var rows []Content
	q := backend.NewQuery().Eq("id", id).Limit(1)
	if err := s.resource.Get(ctx, "content", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Search finds content by title substring, newest first.
func (s *ContentService) Search(ctx context.Context, query string) ([]Content, error) {
	var rows []Content
	q := backend.NewQuery().
		Ilike("title", "*"+query+"*").
		OrderDesc("created_at")
	if err := s.resource.Get(ctx, "content", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByType returns content of one type, newest first.
func (s *ContentService) ListByType(ctx context.Context, contentType string) ([]Content, error) {
	if contentType != ContentLesson && contentType != ContentPuzzle {
		return nil, fmt.Errorf("unknown content type %q", contentType)
	}
	var rows []Content
	q := backend.NewQuery().Eq("type", contentType).OrderDesc("created_at")
	if err := s.resource.Get(ctx, "content", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes a content item.
func (s *ContentService) Delete(ctx context.Context, id string) error {
	q := backend.NewQuery().Eq("id", id)
	return s.resource.Delete(ctx, "content", q)
}
