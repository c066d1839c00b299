// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/coachess/coachess/internal/coaching"
)

// readPassword prompts for a password without echo, falling back to a
// plain line read when stdin is not a terminal (tests, pipes).
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) cmdSignUp(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	name := fs.String("name", "", "display name (required)")
	role := fs.String("role", coaching.RolePlayer, "account role: coach or player")
	timezone := fs.String("timezone", "", "IANA timezone, e.g. Europe/Berlin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	sess, err := a.accounts.SignUp(ctx, coaching.SignUpInput{
		Email:       *email,
		Password:    password,
		DisplayName: *name,
		Role:        *role,
		Timezone:    *timezone,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s (%s) as %s\n", sess.User.Email, sess.User.ID, *role)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("login requires -email")
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	sess, err := a.accounts.SignIn(ctx, *email, password)
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s\n", sess.User.Email)
	return nil
}

func (a *app) cmdLogout() error {
	if err := a.accounts.SignOut(); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func (a *app) cmdWhoami() error {
	user, err := a.accounts.CurrentUser()
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s>", user.DisplayName, user.Email)
	if user.Role != "" {
		fmt.Printf(" (%s)", user.Role)
	}
	fmt.Println()
	fmt.Printf("id: %s\n", user.ID)
	return nil
}
