// Package cmd implements the command-line interface for meetgate.
//
// This package provides the following commands:
//   - serve: Start the HTTP API server
//   - check: Verify directory connectivity and Webex credentials, then exit
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for the HTTP API routes
//
// The serve command is the default command when no subcommand is specified.
package cmd
