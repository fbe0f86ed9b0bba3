// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package main is the waymark command line client.
//
// waymark signs in against the route backend (or runs as a guest), keeps
// a cached list of calculated routes that survives restarts and offline
// periods, resolves the device location to a readable label, and can run
// a local live-map bridge that a browser map page connects to.
//
// # Configuration
//
// Settings are layered with koanf, highest priority first:
//   - Environment variables (a .env file in the working directory is loaded first)
//   - Config file (CONFIG_PATH, ./waymark.yaml, or the user config dir)
//   - Built-in defaults
//
// Common variables:
//
//	WAYMARK_BACKEND_URL=https://routes.example.com
//	MAPTILER_KEY=...             # optional, enables the MapTiler geocoder
//	WAYMARK_STORAGE_TYPE=badger  # or memory
//	WAYMARK_LOCATION_SOURCE=ip   # or static with WAYMARK_LATITUDE/LONGITUDE
//	LOG_LEVEL=info
//
// # Examples
//
//	waymark login -email ada@example.com
//	waymark route "Alexanderplatz, Berlin" "Potsdam Hbf"
//	waymark routes favorite 17
//	waymark locate -detailed
//	waymark track               # live tracking + bridge on 127.0.0.1:8787
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tomtom215/waymark/internal/logging"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks errors caused by bad arguments.
var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":          {"sign in with email and password", cmdLogin},
	"signup":         {"start a signup; a verification code is emailed", cmdSignup},
	"verify-otp":     {"finish a signup with the emailed code", cmdVerifyOTP},
	"resend-otp":     {"send another verification or reset code", cmdResendOTP},
	"reset-password": {"request a reset code, or set a new password with -otp", cmdResetPassword},
	"quick-login":    {"continue as a guest", cmdQuickLogin},
	"logout":         {"sign out and forget the stored session", cmdLogout},
	"whoami":         {"show the current session", cmdWhoami},
	"routes":         {"list|refresh|sync|favorite <id>|delete <id>|current [id|-clear]", cmdRoutes},
	"route":          {"calculate a route between two places and save it", cmdRoute},
	"search":         {"look up places by name", cmdSearch},
	"locate":         {"show the current device location", cmdLocate},
	"track":          {"live tracking and the live-map bridge until interrupted", cmdTrack},
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "waymark: unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	a, err := newApp(ctx, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "waymark: %v\n", err)
		return exitError
	}
	defer a.Close()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "waymark %s: %v\n", args[0], err)
			return exitUsage
		}
		fmt.Fprintf(stderr, "waymark: %v\n", err)
		return exitError
	}
	return exitOK
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: waymark <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
}
