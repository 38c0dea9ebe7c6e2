package meetings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/logging"
	"github.com/teemow/meetgate/internal/webex"
)

type fakeAPI struct {
	listCalls   int
	createCalls int

	listParams webex.ListMeetingsParams
	created    *webex.CreateMeetingRequest

	meetings []webex.Meeting
	err      error
}

func (f *fakeAPI) ListMeetings(_ context.Context, params webex.ListMeetingsParams) ([]webex.Meeting, error) {
	f.listCalls++
	f.listParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.meetings, nil
}

func (f *fakeAPI) CreateMeeting(_ context.Context, req *webex.CreateMeetingRequest) (*webex.Meeting, error) {
	f.createCalls++
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &webex.Meeting{
		ID:      "m-1",
		Title:   req.Title,
		Agenda:  req.Agenda,
		WebLink: "https://example.webex.com/meet/m-1",
	}, nil
}

func newTestService(t *testing.T, api API, cfg Config) *Service {
	t.Helper()
	if cfg.HostEmail == "" {
		cfg.HostEmail = "host@example.com"
	}
	svc, err := NewService(cfg, api, nil, logging.NewSlogAdapter(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return svc
}

var bob = Scheduler{Name: "Bob Builder", Email: "b@x.com"}

func TestNewService(t *testing.T) {
	_, err := NewService(Config{}, &fakeAPI{}, nil, nil)
	assert.Error(t, err, "host email is required")

	_, err = NewService(Config{HostEmail: "host@example.com"}, nil, nil, nil)
	assert.Error(t, err, "api is required")

	svc, err := NewService(Config{HostEmail: " host@example.com "}, &fakeAPI{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "host@example.com", svc.hostEmail)
	assert.Equal(t, DefaultTimezone, svc.timezone)
}

func TestAvailability(t *testing.T) {
	api := &fakeAPI{meetings: []webex.Meeting{{ID: "a"}, {ID: "b"}}}
	svc := newTestService(t, api, Config{})

	got, err := svc.Availability(context.Background(), "2025-01-01T00:00:00Z", "2025-01-02T00:00:00Z")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, webex.ListMeetingsParams{
		HostEmail: "host@example.com",
		From:      "2025-01-01T00:00:00Z",
		To:        "2025-01-02T00:00:00Z",
	}, api.listParams)
}

func TestAvailability_RangeRequired(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{name: "missing to", from: "2025-01-01T00:00:00Z"},
		{name: "missing from", to: "2025-01-02T00:00:00Z"},
		{name: "both missing"},
		{name: "blank to", from: "2025-01-01T00:00:00Z", to: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			svc := newTestService(t, api, Config{})

			_, err := svc.Availability(context.Background(), tt.from, tt.to)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apierror.StatusOf(err))
			assert.Equal(t, MsgRangeRequired, apierror.PublicMessage(err, ""))
			assert.Zero(t, api.listCalls, "no external call on validation failure")
		})
	}
}

func TestAvailability_UpstreamFailure(t *testing.T) {
	api := &fakeAPI{err: apierror.Upstream("webex list meetings failed", errors.New("boom"))}
	svc := newTestService(t, api, Config{})

	_, err := svc.Availability(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, apierror.KindUpstream, apierror.KindOf(err))
}

func TestSchedule(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, Config{Timezone: "Europe/Berlin"})

	meeting, err := svc.Schedule(context.Background(), bob, Request{
		Title:         "Planning",
		Agenda:        "Quarterly goals",
		Password:      "s3cret",
		StartDateTime: "2025-01-01T10:00:00Z",
		EndDateTime:   "2025-01-01T11:00:00Z",
		InviteeEmails: []string{"a@x.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.webex.com/meet/m-1", meeting.WebLink)

	require.NotNil(t, api.created)
	assert.Equal(t, "Planning", api.created.Title)
	assert.Equal(t, "s3cret", api.created.Password)
	assert.Equal(t, "2025-01-01T10:00:00Z", api.created.Start)
	assert.Equal(t, "2025-01-01T11:00:00Z", api.created.End)
	assert.Equal(t, "Europe/Berlin", api.created.Timezone)
	assert.Equal(t, "host@example.com", api.created.HostEmail)
	assert.Equal(t,
		"--------------------------------\nScheduled by: Bob Builder (b@x.com)\n--------------------------------\n\nQuarterly goals",
		api.created.Agenda)
}

func TestSchedule_InviteesIncludeScheduler(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, Config{})

	_, err := svc.Schedule(context.Background(), bob, Request{
		Title:         "Sync",
		StartDateTime: "2025-01-01T10:00:00Z",
		EndDateTime:   "2025-01-01T11:00:00Z",
		InviteeEmails: []string{"a@x.com", "a@x.com"},
	})
	require.NoError(t, err)

	require.NotNil(t, api.created)
	assert.Equal(t, []webex.Invitee{{Email: "a@x.com"}, {Email: "b@x.com"}}, api.created.Invitees)
	assert.Equal(t, DefaultTimezone, api.created.Timezone)
}

func TestSchedule_SchedulerAlreadyInvited(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, Config{})

	_, err := svc.Schedule(context.Background(), bob, Request{
		Title:         "Sync",
		StartDateTime: "s",
		EndDateTime:   "e",
		InviteeEmails: []string{"B@X.com", "c@x.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []webex.Invitee{{Email: "B@X.com"}, {Email: "c@x.com"}}, api.created.Invitees)
}

func TestSchedule_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantMsg string
	}{
		{
			name:    "missing title",
			req:     Request{StartDateTime: "s", EndDateTime: "e"},
			wantMsg: MsgTitleRequired,
		},
		{
			name:    "missing start",
			req:     Request{Title: "t", EndDateTime: "e"},
			wantMsg: MsgTimeRequired,
		},
		{
			name:    "missing end",
			req:     Request{Title: "t", StartDateTime: "s"},
			wantMsg: MsgTimeRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			svc := newTestService(t, api, Config{})

			_, err := svc.Schedule(context.Background(), bob, tt.req)
			require.Error(t, err)
			assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
			assert.Equal(t, tt.wantMsg, apierror.PublicMessage(err, ""))
			assert.Zero(t, api.createCalls)
		})
	}
}

func TestSchedule_UpstreamFailure(t *testing.T) {
	api := &fakeAPI{err: apierror.Upstream("webex create meeting failed", errors.New("boom"))}
	svc := newTestService(t, api, Config{})

	_, err := svc.Schedule(context.Background(), bob, Request{Title: "t", StartDateTime: "s", EndDateTime: "e"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusOf(err))
	assert.Equal(t, 1, api.createCalls)
}

func TestFormatAgenda(t *testing.T) {
	tests := []struct {
		name   string
		agenda string
		want   string
	}{
		{
			name:   "with agenda",
			agenda: "Discuss roadmap",
			want:   "--------------------------------\nScheduled by: Bob Builder (b@x.com)\n--------------------------------\n\nDiscuss roadmap",
		},
		{
			name:   "empty agenda",
			agenda: "",
			want:   "--------------------------------\nScheduled by: Bob Builder (b@x.com)\n--------------------------------\n\nNo description provided.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAgenda(bob, tt.agenda))
		})
	}
}

func TestDedupeInvitees(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil", input: nil, want: []string{}},
		{name: "exact duplicates", input: []string{"a@x.com", "a@x.com"}, want: []string{"a@x.com"}},
		{name: "case insensitive keeps first", input: []string{"A@x.com", "a@X.COM"}, want: []string{"A@x.com"}},
		{name: "blanks dropped", input: []string{"", "  ", "c@x.com"}, want: []string{"c@x.com"}},
		{name: "trimmed", input: []string{" d@x.com ", "d@x.com"}, want: []string{"d@x.com"}},
		{name: "order preserved", input: []string{"z@x.com", "a@x.com", "z@x.com"}, want: []string{"z@x.com", "a@x.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeInvitees(tt.input))
		})
	}
}
