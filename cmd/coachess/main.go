// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package main is the Coachess command-line client.
//
// Coachess connects chess coaches and players: coaches author lessons and
// puzzles, invite players, assign content with due dates, and exchange
// direct messages with live delivery. All data lives in a hosted backend;
// this client signs requests with the current session and renders results.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (COACHESS_URL, COACHESS_ANON_KEY, ...)
//   - Config file (COACHESS_CONFIG or ./coachess.yaml)
//   - Built-in defaults
//
// # Commands
//
//	coachess signup       register an account (coach or player)
//	coachess login        sign in and persist the session
//	coachess logout       clear the persisted session
//	coachess whoami       show the signed-in user
//	coachess invite       create a player invite (coach)
//	coachess connections  list coach-player connections
//	coachess accept       accept an invite token (player)
//	coachess content      author and browse lessons and puzzles
//	coachess assign       assign content to a player (coach)
//	coachess assignments  list assignments, flagging overdue ones
//	coachess messages     show a conversation
//	coachess send         send a message
//	coachess watch        stream a conversation live
//	coachess devstack     run the local development backend
//
// # Signal Handling
//
// Long-running commands (watch, devstack) shut down gracefully on SIGINT
// and SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/coaching"
	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "coachess: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired client components shared by every command.
type app struct {
	cfg         *config.Config
	sessions    *session.Manager
	identity    *backend.IdentityClient
	resource    backend.Resource
	accounts    *coaching.AccountService
	connections *coaching.ConnectionService
	content     *coaching.ContentService
	assignments *coaching.AssignmentService
	messages    *coaching.MessageService
}

// newApp wires the session manager, backend clients, and domain services.
// The session manager is constructed once and passed by reference to every
// component that needs the current user.
func newApp(cfg *config.Config) (*app, error) {
	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	sessions := session.NewManager(store)

	identity := backend.NewIdentityClient(cfg.Backend.URL, cfg.Backend.AnonKey, cfg.Backend.RequestTimeout)
	sessions.SetRefresher(identity)

	var resource backend.Resource = backend.NewClient(cfg.Backend, sessions)
	if cfg.Backend.BreakerEnabled {
		resource = backend.NewBreakerClient(resource)
	}

	return &app{
		cfg:         cfg,
		sessions:    sessions,
		identity:    identity,
		resource:    resource,
		accounts:    coaching.NewAccountService(identity, resource, sessions),
		connections: coaching.NewConnectionService(resource, sessions),
		content:     coaching.NewContentService(resource, sessions),
		assignments: coaching.NewAssignmentService(resource, sessions),
		messages:    coaching.NewMessageService(resource, sessions, cfg.Backend, cfg.Realtime),
	}, nil
}

// close releases the session store.
func (a *app) close() {
	if err := a.sessions.Close(); err != nil {
		logging.Warn().Err(err).Msg("session store close failed")
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	if command == "devstack" {
		return cmdDevstack(ctx, cfg, args)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "signup":
		return a.cmdSignUp(ctx, args)
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout()
	case "whoami":
		return a.cmdWhoami()
	case "invite":
		return a.cmdInvite(ctx, args)
	case "connections":
		return a.cmdConnections(ctx, args)
	case "accept":
		return a.cmdAccept(ctx, args)
	case "content":
		return a.cmdContent(ctx, args)
	case "assign":
		return a.cmdAssign(ctx, args)
	case "assignments":
		return a.cmdAssignments(ctx, args)
	case "messages":
		return a.cmdMessages(ctx, args)
	case "send":
		return a.cmdSend(ctx, args)
	case "watch":
		return a.cmdWatch(ctx, args)
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: coachess <command> [flags]

Account
  signup       register an account (coach or player)
  login        sign in and persist the session
  logout       clear the persisted session
  whoami       show the signed-in user

Connections
  invite       create a player invite (coach)
  connections  list coach-player connections
  accept       accept an invite token (player)

Content & assignments
  content      author and browse lessons and puzzles
  assign       assign content to a player (coach)
  assignments  list assignments, flagging overdue ones

Messaging
  messages     show a conversation
  send         send a message
  watch        stream a conversation live

Development
  devstack     run the local development backend

Run 'coachess <command> -h' for command flags.`)
}
