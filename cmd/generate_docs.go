package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/meetgate/internal/directory"
	"github.com/teemow/meetgate/internal/meetings"
	"github.com/teemow/meetgate/internal/server"
	"github.com/teemow/meetgate/internal/session"
	"github.com/teemow/meetgate/internal/webex"
)

// routeDoc describes one API route for generated documentation.
type routeDoc struct {
	Summary string
	Auth    bool
	Request string
	Success string
	Errors  []string
}

// routeDocs is keyed by "METHOD pattern".
var routeDocs = map[string]routeDoc{
	"POST /api/auth/login": {
		Summary: "Authenticate with directory credentials and receive a session token valid for 8 hours.",
		Request: `{"username": "...", "password": "..."}`,
		Success: `200 {"message": "Login successful!", "user": {"name", "email"}, "token"}`,
		Errors: []string{
			"400 Username and password are required.",
			"400 Ambiguous username found.",
			"401 Invalid username or password.",
			"404 User not found.",
			"429 Too many login attempts.",
			"500 directory unavailable",
		},
	},
	"GET /api/meetings/availability": {
		Summary: "List the host account's meetings between `from` and `to` (query parameters, ISO 8601).",
		Auth:    true,
		Success: `200 {"meetings": [...]}`,
		Errors: []string{
			`400 A "from" and "to" date range is required.`,
			"500 Failed to fetch meeting availability.",
		},
	},
	"POST /api/meetings/schedule": {
		Summary: "Schedule a meeting hosted by the host account. The caller is added to the invitees and named in the agenda.",
		Auth:    true,
		Request: `{"title", "agenda", "password", "startDateTime", "endDateTime", "inviteeEmails": [...]}`,
		Success: `201 {"success": true, "meeting": {...}}`,
		Errors: []string{
			"400 validation failure",
			"500 Failed to schedule the Webex meeting.",
		},
	},
	"GET /healthz":          {Summary: "Liveness probe."},
	"GET /readyz":           {Summary: "Readiness probe. Returns 503 until the listener is up and while shutting down."},
	"GET /healthz/detailed": {Summary: "Version, uptime and dependency checks. Check results are cached for 30 seconds."},
}

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate HTTP API documentation",
		Long: `Generate markdown documentation for all HTTP API routes.
This command walks the registered router, so the documentation always matches
the routes the server actually serves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(outputFile string) error {
	// Documentation only needs the route table, so the dependencies are stubs
	sessions, err := session.NewManager(session.Config{Secret: []byte("generate-docs-placeholder")})
	if err != nil {
		return err
	}
	srv, err := server.New(server.Config{Version: version}, server.Dependencies{
		Authenticator: docsStub{},
		Sessions:      sessions,
		Meetings:      docsStub{},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	routes, err := srv.Routes()
	if err != nil {
		return fmt.Errorf("failed to list routes: %w", err)
	}

	markdown := generateRoutesMarkdown(routes)

	// Write to output
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

func generateRoutesMarkdown(routes []server.Route) string {
	var sb strings.Builder

	sb.WriteString("# HTTP API Reference\n\n")
	sb.WriteString("This document lists every route served by meetgate.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the router.\n\n")

	byCategory := groupRoutesByCategory(routes)
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	sb.WriteString("## Table of Contents\n\n")
	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", category, anchor))
	}
	sb.WriteString("\n")

	sb.WriteString("## Authentication\n\n")
	sb.WriteString("Routes marked as authenticated require `Authorization: Bearer <token>` with a token from `POST /api/auth/login`:\n\n")
	sb.WriteString("- **Missing token:** 401 `Access Denied: No token provided.`\n")
	sb.WriteString("- **Invalid or expired token:** 403 `Access Denied: Invalid or expired token.`\n\n")

	for _, category := range categories {
		sb.WriteString(fmt.Sprintf("## %s\n\n", category))
		for _, route := range byCategory[category] {
			sb.WriteString(generateRouteMarkdown(route))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func groupRoutesByCategory(routes []server.Route) map[string][]server.Route {
	categories := make(map[string][]server.Route)
	for _, route := range routes {
		category := getCategoryFromPattern(route.Pattern)
		categories[category] = append(categories[category], route)
	}
	return categories
}

func getCategoryFromPattern(pattern string) string {
	switch {
	case strings.HasPrefix(pattern, "/api/auth/"):
		return "Authentication Routes"
	case strings.HasPrefix(pattern, "/api/meetings/"):
		return "Meeting Routes"
	case strings.HasPrefix(pattern, "/healthz"), strings.HasPrefix(pattern, "/readyz"):
		return "Health Routes"
	default:
		return "Other"
	}
}

func generateRouteMarkdown(route server.Route) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s %s\n\n", route.Method, route.Pattern))

	doc, ok := routeDocs[route.Method+" "+route.Pattern]
	if !ok {
		return sb.String()
	}
	if doc.Summary != "" {
		sb.WriteString(doc.Summary + "\n\n")
	}
	if doc.Auth {
		sb.WriteString("**Authenticated:** yes\n\n")
	}
	if doc.Request != "" {
		sb.WriteString(fmt.Sprintf("**Request:** `%s`\n\n", doc.Request))
	}
	if doc.Success != "" {
		sb.WriteString(fmt.Sprintf("**Success:** `%s`\n\n", doc.Success))
	}
	if len(doc.Errors) > 0 {
		sb.WriteString("**Errors:**\n")
		for _, e := range doc.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

var errDocsOnly = errors.New("not available while generating documentation")

// docsStub satisfies the server dependencies without reaching any upstream.
type docsStub struct{}

func (docsStub) Authenticate(context.Context, string, string) (*directory.Entry, error) {
	return nil, errDocsOnly
}

func (docsStub) Availability(context.Context, string, string) ([]webex.Meeting, error) {
	return nil, errDocsOnly
}

func (docsStub) Schedule(context.Context, meetings.Scheduler, meetings.Request) (*webex.Meeting, error) {
	return nil, errDocsOnly
}
