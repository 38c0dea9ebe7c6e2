// Package logging provides structured logging helpers for meetgate.
//
// All components log through log/slog. This package keeps attribute names
// consistent and makes it hard to leak credentials or addresses into logs.
//
// # Usage Patterns
//
// Create a logger scoped to a component:
//
//	logger := logging.WithService(slog.Default(), "ldap")
//	logger.Info("user authenticated",
//	    logging.Username(username),
//	    logging.Operation("authenticate"))
//
// Hash personal data before logging:
//
//	logger.Info("meeting scheduled",
//	    logging.UserHash(email))
//
// # Security Considerations
//
//   - Emails and usernames are hashed so log lines can be correlated without exposing PII
//   - Passwords and tokens are never logged; use SanitizeToken when a token's presence matters
package logging
