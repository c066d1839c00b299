// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coachess/coachess/internal/coaching"
	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/devstack"
	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/supervisor"
)

func (a *app) cmdMessages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	connectionID := fs.String("connection", "", "connection id (required)")
	unread := fs.Bool("unread", false, "show the unread count instead of the messages")
	remove := fs.String("delete", "", "delete the message with this id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *remove != "" {
		if err := a.messages.Delete(ctx, *remove); err != nil {
			return err
		}
		fmt.Printf("Message %s deleted\n", *remove)
		return nil
	}

	if *connectionID == "" {
		return fmt.Errorf("messages requires -connection")
	}

	if *unread {
		n, err := a.messages.UnreadCount(ctx, *connectionID)
		if err != nil {
			return err
		}
		fmt.Printf("%d unread\n", n)
		return nil
	}

	msgs, err := a.messages.List(ctx, *connectionID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages")
		return nil
	}
	for i := range msgs {
		printMessage(&msgs[i])
	}
	return nil
}

func (a *app) cmdSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	connectionID := fs.String("connection", "", "connection id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connectionID == "" {
		return fmt.Errorf("send requires -connection")
	}
	body := strings.Join(fs.Args(), " ")

	msg, err := a.messages.Send(ctx, *connectionID, body)
	if err != nil {
		return err
	}
	fmt.Printf("Sent %s\n", msg.ID)
	return nil
}

// cmdWatch streams a conversation live. The realtime channel runs under a
// supervisor so a crash restarts it; transport drops are handled by the
// channel's own backoff.
func (a *app) cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	connectionID := fs.String("connection", "", "connection id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connectionID == "" {
		return fmt.Errorf("watch requires -connection")
	}

	history, err := a.messages.List(ctx, *connectionID)
	if err != nil {
		return err
	}
	for i := range history {
		printMessage(&history[i])
	}

	feed, err := a.messages.Subscribe(*connectionID)
	if err != nil {
		return err
	}
	defer func() { _ = feed.Close() }()
	feed.Prime(history)

	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler()), supervisor.DefaultTreeConfig())
	tree.AddRealtimeService(feed.Channel())
	supDone := tree.ServeBackground(ctx)

	fmt.Println("Watching for new messages, Ctrl-C to stop...")
	for {
		select {
		case msg, ok := <-feed.Messages():
			if !ok {
				return nil
			}
			printMessage(&msg)
		case err := <-supDone:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("realtime supervisor stopped: %w", err)
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func printMessage(m *coaching.Message) {
	stamp := ""
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format(time.RFC822) + "  "
	}
	fmt.Printf("%s%s: %s\n", stamp, m.SenderID, m.Body)
}

// cmdDevstack runs the local development backend until interrupted.
func cmdDevstack(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("devstack", flag.ContinueOnError)
	host := fs.String("host", cfg.Devstack.Host, "listen host")
	port := fs.Int("port", cfg.Devstack.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Devstack.Host = *host
	cfg.Devstack.Port = *port

	server := devstack.NewServer(cfg.Devstack)
	logging.Info().Str("addr", server.Addr()).Msg("starting devstack")

	err := server.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		// Interrupted; a clean shutdown is not an error.
		return nil
	}
	return err
}
