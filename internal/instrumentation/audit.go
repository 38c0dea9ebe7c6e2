package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/meetgate/internal/logging"
)

// Audit actions.
const (
	AuditActionLogin           = "login"
	AuditActionListMeetings    = "list_meetings"
	AuditActionScheduleMeeting = "schedule_meeting"
)

// AuditEvent captures a security-relevant action for the audit trail.
//
// Username and UserEmail are PII. LogAttrs replaces them with hashes and the
// email domain; LogAuditAttrs includes them verbatim.
type AuditEvent struct {
	Action    string
	Username  string
	UserEmail string

	// MeetingID is set for meeting actions once Webex has assigned one
	MeetingID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool

	// Reason is a low-cardinality failure classification, e.g. "invalid_credentials"
	Reason string
	// Error is the full error text. Only logged with LogAuditAttrs since it
	// may contain directory DNs.
	Error string

	TraceID string
	SpanID  string
}

// NewAuditEvent starts timing an audit event for action.
func NewAuditEvent(action string) *AuditEvent {
	return &AuditEvent{
		Action:    action,
		StartTime: time.Now(),
	}
}

// WithUser sets the acting user.
func (e *AuditEvent) WithUser(username, email string) *AuditEvent {
	e.Username = username
	e.UserEmail = email
	return e
}

// WithMeeting sets the affected meeting.
func (e *AuditEvent) WithMeeting(id string) *AuditEvent {
	e.MeetingID = id
	return e
}

// WithSpanContext copies the trace context of the current span.
func (e *AuditEvent) WithSpanContext(ctx context.Context) *AuditEvent {
	e.TraceID = GetTraceID(ctx)
	e.SpanID = GetSpanID(ctx)
	return e
}

// Succeed marks the event successful and records its duration.
func (e *AuditEvent) Succeed() *AuditEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = true
	return e
}

// Fail marks the event failed with a classification and optional cause.
func (e *AuditEvent) Fail(reason string, err error) *AuditEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = false
	e.Reason = reason
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Status returns "success" or "error".
func (e *AuditEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

func (e *AuditEvent) commonAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}
	if e.MeetingID != "" {
		attrs = append(attrs, slog.String("meeting_id", e.MeetingID))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	return attrs
}

// LogAttrs returns attributes with user identity hashed.
func (e *AuditEvent) LogAttrs() []slog.Attr {
	attrs := e.commonAttrs()
	if e.Username != "" {
		attrs = append(attrs, logging.Username(e.Username))
	}
	if e.UserEmail != "" {
		attrs = append(attrs,
			logging.UserHash(e.UserEmail),
			slog.String("user_domain", ExtractUserDomain(e.UserEmail)))
	}
	return attrs
}

// LogAuditAttrs returns attributes including the raw username, email and
// error text. Audit streams carrying these must be access controlled.
func (e *AuditEvent) LogAuditAttrs() []slog.Attr {
	attrs := e.commonAttrs()
	if e.Username != "" {
		attrs = append(attrs, slog.String("username", e.Username))
	}
	if e.UserEmail != "" {
		attrs = append(attrs, slog.String("user", e.UserEmail))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}

// AuditLogger writes audit events through slog.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("log_type", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes e. Successful events are logged at info, failures at warn.
// A nil receiver or a disabled logger does nothing.
func (al *AuditLogger) Log(ctx context.Context, e *AuditEvent) {
	if al == nil || !al.enabled || e == nil {
		return
	}

	attrs := e.LogAttrs()
	if al.includePII {
		attrs = e.LogAuditAttrs()
	}

	level := slog.LevelInfo
	msg := e.Action + "_succeeded"
	if !e.Success {
		level = slog.LevelWarn
		msg = e.Action + "_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
