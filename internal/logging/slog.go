package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyUserHash  = "user_hash"
	KeyUsername  = "username_hash"
	KeyDuration  = "duration"
	KeyError     = "error"
	KeyRequestID = "request_id"
	KeyKind      = "error_kind"
)

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

// WithRequestID returns a logger tagged with the request ID. An empty ID
// returns the logger unchanged.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With(slog.String(KeyRequestID, requestID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// RequestID returns a slog attribute for the request ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Kind returns a slog attribute for an error classification.
func Kind(kind string) slog.Attr {
	return slog.String(KeyKind, kind)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// hashValue returns prefix followed by the first 8 bytes of the SHA-256 of v, hex encoded.
func hashValue(prefix, v string) string {
	if v == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(v))
	return prefix + hex.EncodeToString(hash[:8])
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
// Emails are lowercased first so the same mailbox always hashes the same way.
func AnonymizeEmail(email string) string {
	return hashValue("user:", strings.ToLower(strings.TrimSpace(email)))
}

// AnonymizeUsername returns a hashed representation of a directory username.
func AnonymizeUsername(username string) string {
	return hashValue("uid:", username)
}

// UserHash returns a slog attribute with the anonymized user email.
//
//	logger.Info("operation completed", logging.UserHash(user.Email))
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// Username returns a slog attribute with the anonymized directory username.
func Username(username string) slog.Attr {
	return slog.String(KeyUsername, AnonymizeUsername(username))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
