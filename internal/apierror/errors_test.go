package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Status(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("missing"), http.StatusBadRequest},
		{"not found", NotFound("User not found."), http.StatusNotFound},
		{"ambiguous", AmbiguousEntry("Ambiguous username found."), http.StatusBadRequest},
		{"invalid credentials", InvalidCredentials("bad"), http.StatusUnauthorized},
		{"unauthorized", Unauthorized("no token"), http.StatusUnauthorized},
		{"forbidden", Forbidden("bad token"), http.StatusForbidden},
		{"upstream", Upstream("boom", errors.New("dial tcp")), http.StatusInternalServerError},
		{"unknown kind", New(Kind("weird"), "x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("LDAP search failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), string(KindUpstream))
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("authenticate: %w", NotFound("User not found."))

	assert.True(t, errors.Is(err, NotFound("")))
	assert.False(t, errors.Is(err, InvalidCredentials("")))
}

func TestStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", InvalidCredentials("Invalid username or password."))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(wrapped))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAmbiguousEntry, KindOf(AmbiguousEntry("dup")))
	assert.Equal(t, KindUpstream, KindOf(errors.New("plain")))
}

func TestPublicMessage(t *testing.T) {
	t.Run("typed error keeps its message", func(t *testing.T) {
		err := fmt.Errorf("wrap: %w", NotFound("User not found."))
		assert.Equal(t, "User not found.", PublicMessage(err, "fallback"))
	})

	t.Run("upstream error is collapsed", func(t *testing.T) {
		err := Upstream("ldap://10.0.0.1 refused", errors.New("dial"))
		assert.Equal(t, "fallback", PublicMessage(err, "fallback"))
	})

	t.Run("untyped error is collapsed", func(t *testing.T) {
		assert.Equal(t, "fallback", PublicMessage(errors.New("secret detail"), "fallback"))
	})
}

func TestAs(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)

	apiErr, ok := As(fmt.Errorf("x: %w", Forbidden("nope")))
	require.True(t, ok)
	assert.Equal(t, KindForbidden, apiErr.Kind)
}
