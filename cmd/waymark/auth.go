// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/session"
	"github.com/tomtom215/waymark/internal/validation"
)

// stdin is swapped in tests.
var stdin = bufio.NewReader(os.Stdin)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// prompt reads one line from stdin when value is empty.
func prompt(a *app, label, value string) string {
	if value != "" {
		return value
	}
	a.printf("%s: ", label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

func printSession(a *app, sess *models.Session) {
	if sess == nil {
		a.printf("Not signed in\n")
		return
	}
	if sess.IsGuest() {
		a.printf("Guest %s\n", sess.SubjectID)
		return
	}
	a.printf("Signed in as %s <%s> (id %s)\n", sess.DisplayName, sess.Email, sess.SubjectID)
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	sess, err := a.session.Login(ctx, prompt(a, "Email", *email), prompt(a, "Password", *password))
	if err != nil {
		return err
	}
	printSession(a, sess)
	return nil
}

func cmdSignup(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("signup")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	req := session.SignupRequest{
		Name:     prompt(a, "Name", *name),
		Email:    prompt(a, "Email", *email),
		Password: prompt(a, "Password", *password),
	}
	if err := a.session.Signup(ctx, req); err != nil {
		return err
	}
	a.printf("Verification code sent to %s. Finish with: waymark verify-otp -code <code>\n", req.Email)
	return nil
}

func cmdVerifyOTP(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("verify-otp")
	email := fs.String("email", "", "signup email (defaults to the pending signup)")
	code := fs.String("code", "", "6-digit code")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	addr := *email
	if addr == "" {
		addr = a.session.PendingEmail(ctx)
	}
	sess, err := a.session.VerifyOTP(ctx, prompt(a, "Email", addr), prompt(a, "Code", *code))
	if err != nil {
		return err
	}
	printSession(a, sess)
	return nil
}

func cmdResendOTP(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("resend-otp")
	email := fs.String("email", "", "account email (defaults to the pending signup)")
	purpose := fs.String("purpose", validation.PurposeSignupVerification, "signup_verification or password_reset")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	addr := *email
	if addr == "" {
		addr = a.session.PendingEmail(ctx)
	}
	addr = prompt(a, "Email", addr)
	if err := a.session.ResendOTP(ctx, addr, *purpose); err != nil {
		return err
	}
	a.printf("Code sent to %s\n", addr)
	return nil
}

func cmdResetPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reset-password")
	email := fs.String("email", "", "account email")
	code := fs.String("otp", "", "reset code; without it a code is requested")
	password := fs.String("password", "", "new password (prompted when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	addr := prompt(a, "Email", *email)
	if *code == "" {
		if err := a.session.RequestPasswordReset(ctx, addr); err != nil {
			return err
		}
		a.printf("Reset code sent to %s. Finish with: waymark reset-password -email %s -otp <code>\n", addr, addr)
		return nil
	}

	if err := a.session.ResetPassword(ctx, addr, *code, prompt(a, "New password", *password)); err != nil {
		return err
	}
	a.printf("Password updated. Sign in with: waymark login -email %s\n", addr)
	return nil
}

func cmdQuickLogin(ctx context.Context, a *app, _ []string) error {
	sess, err := a.session.QuickLogin(ctx)
	if err != nil {
		return err
	}
	printSession(a, sess)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.printf("Signed out\n")
	return nil
}

func cmdWhoami(_ context.Context, a *app, _ []string) error {
	a.printf("State: %s\n", a.session.State())
	printSession(a, a.session.Current())
	return nil
}
