// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/coachess/coachess/internal/coaching"
)

func (a *app) cmdInvite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("invite", flag.ContinueOnError)
	email := fs.String("email", "", "player email to invite (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("invite requires -email")
	}

	conn, err := a.connections.CreateInvite(ctx, *email)
	if err != nil {
		return err
	}

	fmt.Printf("Invite created for %s\n", conn.InvitedEmail)
	fmt.Printf("Token: %s\n", conn.InviteToken)
	fmt.Println("Share the token; the player accepts with 'coachess accept -token <token>'.")
	return nil
}

func (a *app) cmdConnections(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("connections", flag.ContinueOnError)
	asCoach := fs.Bool("as-coach", false, "only connections where you are the coach")
	revoke := fs.String("revoke", "", "revoke the connection with this id")
	remove := fs.String("delete", "", "permanently delete the connection with this id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *revoke != "" {
		if err := a.connections.Revoke(ctx, *revoke); err != nil {
			return err
		}
		fmt.Printf("Connection %s revoked\n", *revoke)
		return nil
	}
	if *remove != "" {
		if err := a.connections.Delete(ctx, *remove); err != nil {
			return err
		}
		fmt.Printf("Connection %s deleted\n", *remove)
		return nil
	}

	var (
		conns []coaching.ConnectionWithUsers
		err   error
	)
	if *asCoach {
		conns, err = a.connections.ListAsCoach(ctx)
	} else {
		conns, err = a.connections.List(ctx)
	}
	if err != nil {
		return err
	}

	if len(conns) == 0 {
		fmt.Println("No connections")
		return nil
	}
	for i := range conns {
		c := &conns[i]
		fmt.Printf("%s  %-8s  coach=%s  player=%s\n",
			c.ID, c.Status, profileLabel(c.Coach), profileLabel(c.Player))
	}
	return nil
}

func (a *app) cmdAccept(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("accept", flag.ContinueOnError)
	token := fs.String("token", "", "invite token (required)")
	show := fs.Bool("show", false, "show the invite without accepting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return fmt.Errorf("accept requires -token")
	}

	if *show {
		conn, err := a.connections.GetByToken(ctx, *token)
		if err != nil {
			return err
		}
		if conn == nil {
			return fmt.Errorf("invite not found")
		}
		fmt.Printf("Invite from %s for %s (status %s)\n",
			profileLabel(conn.Coach), conn.InvitedEmail, conn.Status)
		return nil
	}

	conn, err := a.connections.AcceptInvite(ctx, *token)
	if err != nil {
		return err
	}
	fmt.Printf("Connected: %s\n", conn.ID)
	return nil
}

func profileLabel(p *coaching.Profile) string {
	if p == nil {
		return "-"
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}
