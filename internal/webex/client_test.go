package webex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
)

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) AccessToken(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL + "/v1/"}, tokens, WithHTTPClient(srv.Client()))
}

func TestClient_ListMeetings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/meetings", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "host@example.com", r.URL.Query().Get("hostEmail"))
		assert.Equal(t, "2026-05-04T00:00:00Z", r.URL.Query().Get("from"))
		assert.Equal(t, "2026-05-05T00:00:00Z", r.URL.Query().Get("to"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[
			{"id":"m1","title":"Standup","start":"2026-05-04T09:00:00+05:30","end":"2026-05-04T09:15:00+05:30","webLink":"https://example.webex.com/m1"},
			{"id":"m2","title":"Review"}
		]}`)
	}, &staticTokens{token: "tok-123"})

	meetings, err := client.ListMeetings(context.Background(), ListMeetingsParams{
		HostEmail: "host@example.com",
		From:      "2026-05-04T00:00:00Z",
		To:        "2026-05-05T00:00:00Z",
	})
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.Equal(t, "m1", meetings[0].ID)
	assert.Equal(t, "Standup", meetings[0].Title)
	assert.Equal(t, "https://example.webex.com/m1", meetings[0].WebLink)
	assert.Equal(t, "Review", meetings[1].Title)
}

func TestClient_ListMeetings_RecordsResultCount(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"id":"m1"},{"id":"m2"},{"id":"m3"}]}`)
	}, &staticTokens{token: "tok"})

	_, err := client.ListMeetings(context.Background(), ListMeetingsParams{From: "a", To: "b"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var count attribute.Value
	for _, kv := range spans[0].Attributes() {
		if kv.Key == instrumentation.SpanAttrResultCount {
			count = kv.Value
		}
	}
	assert.Equal(t, int64(3), count.AsInt64())
}

func TestClient_ListMeetings_EmptyItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}, &staticTokens{token: "tok"})

	meetings, err := client.ListMeetings(context.Background(), ListMeetingsParams{From: "a", To: "b"})
	require.NoError(t, err)
	assert.NotNil(t, meetings)
	assert.Empty(t, meetings)
}

func TestClient_CreateMeeting(t *testing.T) {
	var got CreateMeetingRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/meetings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"id":"new-1","title":"Planning","webLink":"https://example.webex.com/new-1","hostEmail":"host@example.com"}`)
	}, &staticTokens{token: "tok-123"})

	meeting, err := client.CreateMeeting(context.Background(), &CreateMeetingRequest{
		Title:     "Planning",
		Agenda:    "agenda",
		Password:  "pw",
		Start:     "2026-05-04T10:00:00+05:30",
		End:       "2026-05-04T11:00:00+05:30",
		Timezone:  "Asia/Kolkata",
		HostEmail: "host@example.com",
		Invitees:  []Invitee{{Email: "a@example.com"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "new-1", meeting.ID)
	assert.Equal(t, "https://example.webex.com/new-1", meeting.WebLink)
	assert.Equal(t, "Planning", got.Title)
	assert.Equal(t, "Asia/Kolkata", got.Timezone)
	assert.Equal(t, "host@example.com", got.HostEmail)
	assert.Equal(t, []Invitee{{Email: "a@example.com"}}, got.Invitees)
}

func TestClient_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Invalid start time","errors":[{"description":"start is in the past"}],"trackingId":"ROUTER_123"}`)
	}, &staticTokens{token: "tok"})

	_, err := client.CreateMeeting(context.Background(), &CreateMeetingRequest{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, apierror.KindUpstream, apierror.KindOf(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid start time", apiErr.Message)
	assert.Equal(t, "ROUTER_123", apiErr.TrackingID)
}

func TestClient_TokenFailureSkipsRequest(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, &staticTokens{err: apierror.Upstream("webex token refresh failed", errors.New("invalid_grant"))})

	_, err := client.ListMeetings(context.Background(), ListMeetingsParams{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindUpstream, apierror.KindOf(err))
	assert.False(t, called)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, &staticTokens{token: "tok"})
	_, err := client.ListMeetings(context.Background(), ListMeetingsParams{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindUpstream, apierror.KindOf(err))
}

func TestClient_MalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items": [`)
	}, &staticTokens{token: "tok"})

	_, err := client.ListMeetings(context.Background(), ListMeetingsParams{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindUpstream, apierror.KindOf(err))
}

func TestNewAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantText string
	}{
		{"webex envelope", 401, `{"message":"Unauthorized","trackingId":"T1"}`, "Unauthorized", "webex API returned 401: Unauthorized (tracking id T1)"},
		{"errors only", 400, `{"errors":[{"description":"bad field"}]}`, "bad field", "webex API returned 400: bad field"},
		{"plain text", 502, "Bad Gateway\n", "Bad Gateway", "webex API returned 502: Bad Gateway"},
		{"empty", 500, "", "", "webex API returned 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.Equal(t, tt.wantText, err.Error())
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{}, &staticTokens{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}
