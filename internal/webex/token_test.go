package webex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetgate/internal/apierror"
)

// tokenServer is a fake Webex token endpoint.
type tokenServer struct {
	*httptest.Server

	calls     atomic.Int32
	delay     time.Duration
	status    int
	expiresIn int

	mu            sync.Mutex
	refreshTokens []string
	rotateTo      string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK, expiresIn: 3600}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		ts.mu.Lock()
		ts.refreshTokens = append(ts.refreshTokens, r.PostForm.Get("refresh_token"))
		rotateTo := ts.rotateTo
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token expired",
			})
			return
		}

		body := map[string]any{
			"access_token": "access-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   ts.expiresIn,
		}
		if rotateTo != "" {
			body["refresh_token"] = rotateTo
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) sentRefreshTokens() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.refreshTokens...)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, ts *tokenServer, clock *fakeClock, seed string) *TokenCache {
	t.Helper()
	tc, err := NewTokenCache(TokenConfig{
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		RefreshToken:    "refresh-0",
		TokenURL:        ts.URL,
		SeedAccessToken: seed,
	}, WithTokenHTTPClient(ts.Client()), WithClock(clock.Now))
	require.NoError(t, err)
	return tc
}

func TestTokenCache_RefreshesWhenEmpty(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	tc := newTestCache(t, ts, clock, "")

	token, err := tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, clock.Now().Add(time.Hour-5*time.Minute), tc.Expiry())
	assert.Equal(t, []string{"refresh-0"}, ts.sentRefreshTokens())

	token, err = tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, int32(1), ts.calls.Load(), "a valid token must be served from the cache")
}

func TestTokenCache_ExpiryBoundary(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	tc := newTestCache(t, ts, clock, "")

	_, err := tc.AccessToken(context.Background())
	require.NoError(t, err)

	clock.Advance(55*time.Minute - time.Second)
	token, err := tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, int32(1), ts.calls.Load())

	clock.Advance(time.Second)
	token, err = tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token, "token must be refreshed once now reaches the buffered expiry")
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestTokenCache_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay = 50 * time.Millisecond
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	tc := newTestCache(t, ts, clock, "")

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = tc.AccessToken(context.Background())
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i])
	}
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestTokenCache_RefreshFailure(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	clock := &fakeClock{now: time.Now()}
	tc := newTestCache(t, ts, clock, "")

	token, err := tc.AccessToken(context.Background())
	require.Error(t, err)
	assert.Empty(t, token)
	assert.Equal(t, apierror.KindUpstream, apierror.KindOf(err))
	assert.Equal(t, int32(1), ts.calls.Load(), "a failed refresh is not retried")
	assert.True(t, tc.Expiry().IsZero())

	_, err = tc.AccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), ts.calls.Load(), "the next call tries again")
}

func TestTokenCache_Seeded(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	tc := newTestCache(t, ts, clock, "seeded-token")

	token, err := tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seeded-token", token)

	clock.Advance(11*time.Hour - time.Second)
	token, err = tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seeded-token", token)
	assert.Zero(t, ts.calls.Load())

	clock.Advance(time.Second)
	token, err = tc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}

func TestTokenCache_KeepsRotatedRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.rotateTo = "refresh-1"
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	tc := newTestCache(t, ts, clock, "")

	_, err := tc.AccessToken(context.Background())
	require.NoError(t, err)
	require.NoError(t, tc.Refresh(context.Background()))

	assert.Equal(t, []string{"refresh-0", "refresh-1"}, ts.sentRefreshTokens())
}

func TestTokenCache_ShortLivedToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresIn = 60 // shorter than the expiry buffer
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	tc := newTestCache(t, ts, clock, "")

	_, err := tc.AccessToken(context.Background())
	require.NoError(t, err)
	_, err = tc.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), ts.calls.Load(), "a token inside the buffer is already stale")
}

func TestTokenConfig_Validate(t *testing.T) {
	err := TokenConfig{}.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "client ID")
	assert.ErrorContains(t, err, "client secret")
	assert.ErrorContains(t, err, "refresh token")

	assert.NoError(t, TokenConfig{ClientID: "a", ClientSecret: "b", RefreshToken: "c"}.Validate())

	_, err = NewTokenCache(TokenConfig{ClientID: "a"})
	assert.Error(t, err)
}
