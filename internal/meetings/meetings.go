package meetings

import (
	"context"
	"errors"
	"strings"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/logging"
	"github.com/teemow/meetgate/internal/webex"
)

// DefaultTimezone is the timezone sent with new meetings unless configured otherwise.
const DefaultTimezone = "Asia/Kolkata"

// Client-facing validation messages.
const (
	MsgRangeRequired = `A "from" and "to" date range is required.`
	MsgTitleRequired = `A meeting "title" is required.`
	MsgTimeRequired  = `A "startDateTime" and "endDateTime" are required.`
)

const (
	bannerRule    = "--------------------------------"
	defaultAgenda = "No description provided."
)

// API is the subset of the Webex client used by the Service.
type API interface {
	ListMeetings(ctx context.Context, params webex.ListMeetingsParams) ([]webex.Meeting, error)
	CreateMeeting(ctx context.Context, req *webex.CreateMeetingRequest) (*webex.Meeting, error)
}

// Scheduler identifies the authenticated user on whose behalf a meeting is created.
type Scheduler struct {
	Name  string
	Email string
}

// Request is an inbound request to schedule a meeting.
type Request struct {
	Title         string   `json:"title"`
	Agenda        string   `json:"agenda"`
	Password      string   `json:"password"`
	StartDateTime string   `json:"startDateTime"`
	EndDateTime   string   `json:"endDateTime"`
	InviteeEmails []string `json:"inviteeEmails"`
}

// Config configures a Service.
type Config struct {
	// HostEmail is the Webex account that owns every meeting
	HostEmail string

	// Timezone defaults to DefaultTimezone
	Timezone string
}

// Service proxies meeting operations to Webex.
type Service struct {
	api       API
	hostEmail string
	timezone  string
	metrics   *instrumentation.Metrics
	logger    logging.Logger
}

// NewService creates a Service. metrics may be nil; a nil logger uses slog.Default().
func NewService(cfg Config, api API, metrics *instrumentation.Metrics, logger logging.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.HostEmail) == "" {
		return nil, errors.New("meeting host email is required")
	}
	if api == nil {
		return nil, errors.New("meeting API client is required")
	}
	timezone := cfg.Timezone
	if timezone == "" {
		timezone = DefaultTimezone
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Service{
		api:       api,
		hostEmail: strings.TrimSpace(cfg.HostEmail),
		timezone:  timezone,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Availability lists the host's meetings between from and to. Both bounds are
// required and are checked before Webex is contacted.
func (s *Service) Availability(ctx context.Context, from, to string) ([]webex.Meeting, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, apierror.Validation(MsgRangeRequired)
	}

	meetings, err := s.api.ListMeetings(ctx, webex.ListMeetingsParams{
		HostEmail: s.hostEmail,
		From:      from,
		To:        to,
	})
	if err != nil {
		s.logger.Error("failed to fetch meeting availability",
			logging.KeyOperation, instrumentation.OperationListMeetings,
			logging.KeyError, err.Error())
		return nil, err
	}
	return meetings, nil
}

// Schedule creates a meeting for scheduler. The agenda is prefixed with a
// banner naming the scheduler, and the scheduler is added to the invitees.
func (s *Service) Schedule(ctx context.Context, scheduler Scheduler, req Request) (*webex.Meeting, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apierror.Validation(MsgTitleRequired)
	}
	if strings.TrimSpace(req.StartDateTime) == "" || strings.TrimSpace(req.EndDateTime) == "" {
		return nil, apierror.Validation(MsgTimeRequired)
	}

	emails := DedupeInvitees(append(append([]string(nil), req.InviteeEmails...), scheduler.Email))
	invitees := make([]webex.Invitee, 0, len(emails))
	for _, email := range emails {
		invitees = append(invitees, webex.Invitee{Email: email})
	}

	meeting, err := s.api.CreateMeeting(ctx, &webex.CreateMeetingRequest{
		Title:     req.Title,
		Agenda:    FormatAgenda(scheduler, req.Agenda),
		Password:  req.Password,
		Start:     strings.TrimSpace(req.StartDateTime),
		End:       strings.TrimSpace(req.EndDateTime),
		Timezone:  s.timezone,
		HostEmail: s.hostEmail,
		Invitees:  invitees,
	})
	if err != nil {
		s.metrics.RecordMeetingScheduled(ctx, instrumentation.StatusError)
		s.logger.Error("failed to schedule meeting",
			logging.KeyOperation, instrumentation.OperationCreateMeeting,
			logging.KeyUserHash, logging.AnonymizeEmail(scheduler.Email),
			logging.KeyError, err.Error())
		return nil, err
	}

	s.metrics.RecordMeetingScheduled(ctx, instrumentation.StatusSuccess)
	s.logger.Info("meeting scheduled",
		"meeting_id", meeting.ID,
		"invitees", len(invitees),
		logging.KeyUserHash, logging.AnonymizeEmail(scheduler.Email))
	return meeting, nil
}

// FormatAgenda prefixes agenda with the scheduler banner. An empty agenda is
// replaced by a placeholder.
func FormatAgenda(scheduler Scheduler, agenda string) string {
	if agenda == "" {
		agenda = defaultAgenda
	}
	var b strings.Builder
	b.WriteString(bannerRule)
	b.WriteString("\nScheduled by: ")
	b.WriteString(scheduler.Name)
	b.WriteString(" (")
	b.WriteString(scheduler.Email)
	b.WriteString(")\n")
	b.WriteString(bannerRule)
	b.WriteString("\n\n")
	b.WriteString(agenda)
	return b.String()
}

// DedupeInvitees trims emails, drops blanks and removes case-insensitive
// duplicates. The first spelling of each address is kept, in input order.
func DedupeInvitees(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		key := strings.ToLower(email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, email)
	}
	return out
}
