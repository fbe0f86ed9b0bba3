// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/routing"
)

func formatRoute(r *models.Route) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s -> %s", r.ID, r.Origin.Address, r.Destination.Address)
	if r.DistanceMeters > 0 {
		fmt.Fprintf(&b, "  %.1f km", r.DistanceMeters/1000)
	}
	if r.DurationSeconds > 0 {
		fmt.Fprintf(&b, "  %s", (time.Duration(r.DurationSeconds) * time.Second).Round(time.Minute))
	}
	if r.TransportKind != "" {
		fmt.Fprintf(&b, "  %s", r.TransportKind)
	}
	if r.Favorite {
		b.WriteString("  *")
	}
	if r.IsLocal() {
		b.WriteString("  (not synced)")
	}
	return b.String()
}

func printRoutes(a *app, list []*models.Route) {
	if len(list) == 0 {
		a.printf("No saved routes\n")
		return
	}
	current := a.routes.Current()
	for _, r := range list {
		marker := " "
		if current != nil && current.ID == r.ID {
			marker = ">"
		}
		a.printf("%s %s\n", marker, formatRoute(r))
	}
}

func cmdRoutes(ctx context.Context, a *app, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		list, err := a.routes.Load(ctx)
		if err != nil {
			return err
		}
		printRoutes(a, list)

	case "refresh":
		list, err := a.routes.Refresh(ctx)
		if err != nil {
			return err
		}
		printRoutes(a, list)

	case "sync":
		if _, err := a.routes.Load(ctx); err != nil {
			return err
		}
		n, err := a.routes.SyncPending(ctx)
		a.printf("Synced %d route(s)\n", n)
		return err

	case "favorite":
		id, err := oneArg(args, "route id")
		if err != nil {
			return err
		}
		if _, err := a.routes.Load(ctx); err != nil {
			return err
		}
		fav, err := a.routes.ToggleFavorite(ctx, id)
		if err != nil {
			return err
		}
		if fav {
			a.printf("Route %s marked as favorite\n", id)
		} else {
			a.printf("Route %s is no longer a favorite\n", id)
		}

	case "delete":
		id, err := oneArg(args, "route id")
		if err != nil {
			return err
		}
		if _, err := a.routes.Load(ctx); err != nil {
			return err
		}
		if err := a.routes.Delete(ctx, id); err != nil {
			return err
		}
		a.printf("Route %s deleted\n", id)

	case "current":
		if _, err := a.routes.Load(ctx); err != nil {
			return err
		}
		switch {
		case len(args) == 0:
			if r := a.routes.Current(); r != nil {
				a.printf("%s\n", formatRoute(r))
			} else {
				a.printf("No current route\n")
			}
		case args[0] == "-clear":
			return a.routes.SetCurrent(ctx, nil)
		default:
			r, err := a.routes.SelectByID(ctx, args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", formatRoute(r))
		}

	default:
		return fmt.Errorf("%w: unknown routes subcommand %q", errUsage, sub)
	}
	return nil
}

func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: expected one %s", errUsage, what)
	}
	return args[0], nil
}

// resolvePlace geocodes free text to the best candidate. "here" uses the
// device location.
func resolvePlace(ctx context.Context, a *app, text string) (models.Place, error) {
	if strings.EqualFold(strings.TrimSpace(text), "here") {
		loc, err := a.locator.GetCurrentLocation(ctx)
		if err != nil {
			return models.Place{}, err
		}
		return models.Place{Coordinate: loc.Coordinate, Address: loc.Label}, nil
	}

	res, err := a.resolver.Search(ctx, text, 1)
	if err != nil {
		return models.Place{}, fmt.Errorf("could not find %q: %w", text, err)
	}
	return models.Place{Coordinate: res[0].Coordinate(), Address: res[0].Name}, nil
}

func cmdRoute(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("route")
	mode := fs.String("mode", routing.ModeDriving, "driving, walking or cycling")
	estimate := fs.Bool("estimate", false, "fall back to a straight-line estimate when no service answers")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: expected <from> <to>", errUsage)
	}

	if err := a.routes.SaveSearch(ctx, fs.Arg(0), fs.Arg(1)); err != nil {
		return err
	}
	origin, err := resolvePlace(ctx, a, fs.Arg(0))
	if err != nil {
		return err
	}
	destination, err := resolvePlace(ctx, a, fs.Arg(1))
	if err != nil {
		return err
	}

	planner := a.planner
	if *estimate {
		planner = routing.NewDefaultPlanner(a.cfg.Routing, a.client, true)
	}
	planned, err := planner.Plan(ctx, origin, destination, routing.Options{TransportMode: *mode})
	if err != nil {
		return err
	}

	if _, err := a.routes.Load(ctx); err != nil {
		return err
	}
	saved, err := a.routes.Add(ctx, planned)
	if err != nil {
		return err
	}
	a.printf("%s\n", formatRoute(saved))
	return nil
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("search")
	limit := fs.Int("limit", a.cfg.Geocoding.SearchLimit, "maximum results")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		if last, ok := a.routes.LastSearch(ctx); ok {
			a.printf("Last search: %s -> %s\n", last.Origin, last.Destination)
			return nil
		}
		return fmt.Errorf("%w: expected search text", errUsage)
	}

	res, err := a.resolver.Search(ctx, query, *limit)
	if err != nil {
		return err
	}
	for i, r := range res {
		a.printf("%d. %s (%.5f, %.5f) [%s]\n", i+1, r.Name, r.Lat, r.Lon, r.Provider)
	}
	return nil
}
