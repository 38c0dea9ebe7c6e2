package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/logging"
)

const (
	// DefaultBaseURL is the Webex REST API root.
	DefaultBaseURL = "https://webexapis.com/v1"

	// DefaultTimeout bounds every request to the Webex API.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// TokenSource provides bearer tokens for API calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string        // defaults to DefaultBaseURL
	Timeout time.Duration // defaults to DefaultTimeout
}

// Client calls the Webex meetings API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithMetrics records upstream metrics for every API call.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a Client authenticating through tokens.
func NewClient(cfg ClientConfig, tokens TokenSource, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithService(c.logger, instrumentation.ServiceWebex)
	return c
}

// ListMeetings returns the meetings of params.HostEmail between From and To.
func (c *Client) ListMeetings(ctx context.Context, params ListMeetingsParams) ([]Meeting, error) {
	query := url.Values{}
	if params.HostEmail != "" {
		query.Set("hostEmail", params.HostEmail)
	}
	if params.From != "" {
		query.Set("from", params.From)
	}
	if params.To != "" {
		query.Set("to", params.To)
	}

	var resp listMeetingsResponse
	if err := c.do(ctx, instrumentation.OperationListMeetings, http.MethodGet, "/meetings?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []Meeting{}
	}
	return resp.Items, nil
}

// CreateMeeting creates a meeting and returns it as stored by Webex.
func (c *Client) CreateMeeting(ctx context.Context, req *CreateMeetingRequest) (*Meeting, error) {
	var meeting Meeting
	if err := c.do(ctx, instrumentation.OperationCreateMeeting, http.MethodPost, "/meetings", req, &meeting); err != nil {
		return nil, err
	}
	return &meeting, nil
}

// do performs one authenticated JSON request. Every failure, including a
// failed token refresh, is returned as an upstream *apierror.Error.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	start := time.Now()
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceWebex, operation,
		attribute.String("http.request.method", method))
	defer func() {
		instrumentation.EndSpan(span, err)
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordUpstreamOperation(ctx, instrumentation.ServiceWebex, operation, status, time.Since(start))
	}()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apierror.Upstream("failed to encode webex request", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apierror.Upstream("failed to create webex request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apierror.Upstream("webex request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apierror.Upstream("failed to read webex response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, respBody)
		c.logger.Warn("webex API call failed",
			logging.Operation(operation),
			slog.Int("status_code", resp.StatusCode),
			slog.String("tracking_id", apiErr.TrackingID))
		return apierror.Upstream(fmt.Sprintf("webex %s failed", operation), apiErr)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apierror.Upstream("failed to decode webex response", err)
	}
	if rc, ok := out.(resultCounter); ok {
		span.SetAttributes(attribute.Int(instrumentation.SpanAttrResultCount, rc.resultCount()))
	}
	return nil
}
