package webex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/logging"
)

const (
	// DefaultTokenURL is the Webex OAuth2 token endpoint.
	DefaultTokenURL = "https://webexapis.com/v1/access_token"

	// ExpiryBuffer is subtracted from every refreshed token's lifetime.
	ExpiryBuffer = 5 * time.Minute

	// SeedTokenTTL is the lifetime assumed for a pre-issued access token.
	SeedTokenTTL = 11 * time.Hour
)

// TokenConfig configures a TokenCache.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL defaults to DefaultTokenURL
	TokenURL string

	// SeedAccessToken, if set, is served until SeedTokenTTL has elapsed
	// before the first refresh is attempted.
	SeedAccessToken string
}

// Validate checks that the refresh grant can be performed.
func (c TokenConfig) Validate() error {
	var missing []error
	if c.ClientID == "" {
		missing = append(missing, errors.New("webex client ID is required"))
	}
	if c.ClientSecret == "" {
		missing = append(missing, errors.New("webex client secret is required"))
	}
	if c.RefreshToken == "" {
		missing = append(missing, errors.New("webex refresh token is required"))
	}
	return errors.Join(missing...)
}

// TokenCache holds the current Webex access token and refreshes it on demand.
// Refreshes are serialized: concurrent callers that find the token expired
// wait for a single refresh and then share its result.
type TokenCache struct {
	config     *oauth2.Config
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	expiry       time.Time
}

// TokenOption configures a TokenCache.
type TokenOption func(*TokenCache)

// WithTokenHTTPClient sets the HTTP client used to call the token endpoint.
func WithTokenHTTPClient(c *http.Client) TokenOption {
	return func(tc *TokenCache) {
		tc.httpClient = c
	}
}

// WithTokenMetrics records refresh outcomes.
func WithTokenMetrics(m *instrumentation.Metrics) TokenOption {
	return func(tc *TokenCache) {
		tc.metrics = m
	}
}

// WithTokenLogger sets the logger. The default is slog.Default().
func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(tc *TokenCache) {
		tc.logger = l
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) TokenOption {
	return func(tc *TokenCache) {
		tc.now = now
	}
}

// NewTokenCache validates cfg and returns an empty cache, or one seeded with
// cfg.SeedAccessToken.
func NewTokenCache(cfg TokenConfig, opts ...TokenOption) (*TokenCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	tc := &TokenCache{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: cfg.RefreshToken,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(tc)
	}
	tc.logger = logging.WithService(tc.logger, instrumentation.ServiceWebex)

	if cfg.SeedAccessToken != "" {
		tc.accessToken = cfg.SeedAccessToken
		tc.expiry = tc.now().Add(SeedTokenTTL)
	}

	return tc, nil
}

// AccessToken returns a valid access token, refreshing it first when none is
// cached or the cached one has reached its expiry. A failed refresh is
// returned as an upstream error and is not retried.
func (tc *TokenCache) AccessToken(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.accessToken != "" && tc.now().Before(tc.expiry) {
		return tc.accessToken, nil
	}

	if err := tc.refresh(ctx); err != nil {
		return "", err
	}
	return tc.accessToken, nil
}

// Refresh forces a token refresh regardless of the cached expiry.
func (tc *TokenCache) Refresh(ctx context.Context) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.refresh(ctx)
}

// Expiry returns when the cached token stops being served. The zero time
// means no token is cached.
func (tc *TokenCache) Expiry() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.expiry
}

// refresh performs the refresh_token grant. tc.mu must be held.
func (tc *TokenCache) refresh(ctx context.Context) (err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceWebex, instrumentation.OperationTokenRefresh)
	start := tc.now()
	defer func() {
		instrumentation.EndSpan(span, err)
		result, status := instrumentation.RefreshResultSuccess, instrumentation.StatusSuccess
		if err != nil {
			result, status = instrumentation.RefreshResultFailure, instrumentation.StatusError
		}
		tc.metrics.RecordTokenRefresh(ctx, result)
		tc.metrics.RecordUpstreamOperation(ctx, instrumentation.ServiceWebex, instrumentation.OperationTokenRefresh, status, tc.now().Sub(start))
	}()

	if tc.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.httpClient)
	}

	tok, err := tc.config.TokenSource(ctx, &oauth2.Token{RefreshToken: tc.refreshToken}).Token()
	if err != nil {
		tc.logger.Error("failed to refresh webex access token", logging.Err(err))
		return apierror.Upstream("webex token refresh failed", fmt.Errorf("refresh access token: %w", err))
	}

	now := tc.now()
	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime <= 0 && !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}
	if lifetime <= 0 {
		tc.logger.Warn("webex token response carried no expires_in, token will be refreshed on next use")
	}

	tc.accessToken = tok.AccessToken
	tc.expiry = now.Add(lifetime - ExpiryBuffer)
	if tok.RefreshToken != "" && tok.RefreshToken != tc.refreshToken {
		tc.refreshToken = tok.RefreshToken
		tc.logger.Info("webex refresh token rotated")
	}

	tc.logger.Info("webex access token refreshed",
		slog.Time("expires_at", tc.expiry),
		slog.String("token", logging.SanitizeToken(tc.accessToken)))
	return nil
}
