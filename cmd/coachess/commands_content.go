// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coachess/coachess/internal/coaching"
)

func (a *app) cmdContent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("content", flag.ContinueOnError)
	create := fs.Bool("create", false, "create a new content item")
	title := fs.String("title", "", "content title (with -create)")
	contentType := fs.String("type", "", "lesson or puzzle (with -create)")
	pgnFile := fs.String("pgn", "", "path to a PGN file (lessons)")
	fen := fs.String("fen", "", "FEN position (puzzles)")
	search := fs.String("search", "", "search content by title")
	byType := fs.String("list-type", "", "list content of one type")
	remove := fs.String("delete", "", "delete the content item with this id")
	show := fs.String("show", "", "show one content item by id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *create:
		input := coaching.CreateContentInput{Title: *title, Type: *contentType, FEN: *fen}
		if *pgnFile != "" {
			data, err := os.ReadFile(*pgnFile)
			if err != nil {
				return fmt.Errorf("read PGN file: %w", err)
			}
			input.PGN = string(data)
		}
		item, err := a.content.Create(ctx, input)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s %q (%s)\n", item.Type, item.Title, item.ID)
		return nil

	case *remove != "":
		if err := a.content.Delete(ctx, *remove); err != nil {
			return err
		}
		fmt.Printf("Content %s deleted\n", *remove)
		return nil

	case *show != "":
		item, err := a.content.Get(ctx, *show)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("content not found")
		}
		printContent(item)
		return nil

	case *search != "":
		items, err := a.content.Search(ctx, *search)
		if err != nil {
			return err
		}
		printContentList(items)
		return nil

	case *byType != "":
		items, err := a.content.ListByType(ctx, *byType)
		if err != nil {
			return err
		}
		printContentList(items)
		return nil

	default:
		items, err := a.content.ListMine(ctx)
		if err != nil {
			return err
		}
		printContentList(items)
		return nil
	}
}

func printContent(item *coaching.Content) {
	fmt.Printf("%s %q (%s)\n", item.Type, item.Title, item.ID)
	if item.FEN != "" {
		fmt.Printf("FEN: %s\n", item.FEN)
	}
	if item.PGN != "" {
		fmt.Printf("PGN:\n%s\n", item.PGN)
	}
}

func printContentList(items []coaching.Content) {
	if len(items) == 0 {
		fmt.Println("No content")
		return
	}
	for i := range items {
		fmt.Printf("%s  %-6s  %s\n", items[i].ID, items[i].Type, items[i].Title)
	}
}

func (a *app) cmdAssign(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("assign", flag.ContinueOnError)
	contentID := fs.String("content", "", "content id to assign (required)")
	playerID := fs.String("player", "", "player id (required)")
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := coaching.CreateAssignmentInput{ContentID: *contentID, PlayerID: *playerID}
	if *due != "" {
		dueDate, err := time.Parse("2006-01-02", *due)
		if err != nil {
			return fmt.Errorf("invalid due date %q, want YYYY-MM-DD", *due)
		}
		input.DueDate = &dueDate
	}

	created, err := a.assignments.Create(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("Assignment %s created\n", created.ID)
	return nil
}

func (a *app) cmdAssignments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("assignments", flag.ContinueOnError)
	asCoach := fs.Bool("as-coach", false, "assignments you created")
	asPlayer := fs.Bool("as-player", false, "assignments directed at you")
	status := fs.String("status", "", "filter by status: assigned, completed, skipped")
	overdueOnly := fs.Bool("overdue", false, "only overdue assignments")
	complete := fs.String("complete", "", "mark the assignment with this id completed")
	skip := fs.String("skip", "", "mark the assignment with this id skipped")
	remove := fs.String("delete", "", "delete the assignment with this id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *complete != "":
		updated, err := a.assignments.MarkCompleted(ctx, *complete)
		if err != nil {
			return err
		}
		fmt.Printf("Assignment %s completed\n", updated.ID)
		return nil
	case *skip != "":
		updated, err := a.assignments.UpdateStatus(ctx, *skip, coaching.AssignmentSkipped)
		if err != nil {
			return err
		}
		fmt.Printf("Assignment %s skipped\n", updated.ID)
		return nil
	case *remove != "":
		if err := a.assignments.Delete(ctx, *remove); err != nil {
			return err
		}
		fmt.Printf("Assignment %s deleted\n", *remove)
		return nil
	}

	var (
		rows []coaching.AssignmentWithDetails
		err  error
	)
	switch {
	case *status != "":
		rows, err = a.assignments.ListByStatus(ctx, *status)
	case *asCoach:
		rows, err = a.assignments.ListAsCoach(ctx)
	case *asPlayer:
		rows, err = a.assignments.ListAsPlayer(ctx)
	default:
		rows, err = a.assignments.List(ctx)
	}
	if err != nil {
		return err
	}

	if *overdueOnly {
		rows = a.assignments.Overdue(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No assignments")
		return nil
	}
	now := time.Now()
	for i := range rows {
		r := &rows[i]
		title := "(missing content)"
		if r.Content != nil {
			title = r.Content.Title
		}
		line := fmt.Sprintf("%s  %-9s  %q  player=%s", r.ID, r.Status, title, profileLabel(r.Player))
		if r.DueDate != nil {
			line += fmt.Sprintf("  due=%s", r.DueDate.Format("2006-01-02"))
		}
		if r.IsOverdue(now) {
			line += "  OVERDUE"
		}
		fmt.Println(line)
	}
	return nil
}
