package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/session"
)

// Client-facing messages for rejected session tokens.
const (
	MsgNoToken      = "Access Denied: No token provided."
	MsgInvalidToken = "Access Denied: Invalid or expired token."
)

// contextKey is the type for context keys
type contextKey string

// identityContextKey stores the verified session identity
const identityContextKey contextKey = "session_identity"

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*session.Claims, error)
}

// IdentityFromContext returns the identity stored by RequireSession.
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(session.Identity)
	return id, ok
}

// ContextWithIdentity returns ctx carrying id.
func ContextWithIdentity(ctx context.Context, id session.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// RequireSession rejects requests without a valid bearer session token and
// stores the token's identity in the request context.
func RequireSession(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(verifier, r)
			if err != nil {
				logger.Debug("session token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeError(w, err, MsgInvalidToken)
				return
			}

			instrumentation.SetUserDomain(r.Context(), claims.Email)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), claims.Identity())))
		})
	}
}

// authenticate verifies the request's bearer token. A missing token is
// Unauthorized, a token that fails verification is Forbidden.
func authenticate(verifier TokenVerifier, r *http.Request) (*session.Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, apierror.Unauthorized(MsgNoToken)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		forbidden := apierror.Forbidden(MsgInvalidToken)
		forbidden.Err = err
		return nil, forbidden
	}
	return claims, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Any other scheme yields an empty string.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
