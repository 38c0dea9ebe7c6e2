package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teemow/meetgate/internal/apierror"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/logging"
	"github.com/teemow/meetgate/internal/meetings"
	"github.com/teemow/meetgate/internal/session"
	"github.com/teemow/meetgate/internal/webex"
)

// Client-facing messages.
const (
	MsgLoginSuccess       = "Login successful!"
	MsgCredentialsMissing = "Username and password are required."
	MsgInvalidBody        = "Invalid request body."
	MsgInternalError      = "An internal server error occurred."
	MsgAvailabilityFailed = "Failed to fetch meeting availability."
	MsgScheduleFailed     = "Failed to schedule the Webex meeting."
	MsgNotFound           = "Not found."
	MsgMethodNotAllowed   = "Method not allowed."
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type loginResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
	Token   string       `json:"token"`
}

type availabilityResponse struct {
	Meetings []webex.Meeting `json:"meetings"`
}

type scheduleResponse struct {
	Success bool           `json:"success"`
	Meeting *webex.Meeting `json:"meeting,omitempty"`
	Message string         `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError responds with err's status and public message. Errors without a
// client-facing message use fallback.
func writeError(w http.ResponseWriter, err error, fallback string) {
	writeJSON(w, apierror.StatusOf(err), messageResponse{Message: apierror.PublicMessage(err, fallback)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// loginResult maps an authentication error to its metric label.
func loginResult(err error) string {
	switch apierror.KindOf(err) {
	case apierror.KindInvalidCredentials:
		return instrumentation.LoginResultInvalidCredentials
	case apierror.KindNotFound:
		return instrumentation.LoginResultNotFound
	case apierror.KindAmbiguousEntry:
		return instrumentation.LoginResultAmbiguous
	case apierror.KindValidation:
		return instrumentation.LoginResultInvalidRequest
	default:
		return instrumentation.LoginResultError
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithRequestID(s.logger, RequestIDFromContext(ctx))

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.RecordLogin(ctx, instrumentation.LoginResultInvalidRequest, "")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: MsgInvalidBody})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		s.metrics.RecordLogin(ctx, instrumentation.LoginResultInvalidRequest, "")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: MsgCredentialsMissing})
		return
	}

	event := instrumentation.NewAuditEvent(instrumentation.AuditActionLogin).
		WithUser(req.Username, "").
		WithSpanContext(ctx)

	entry, err := s.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		result := loginResult(err)
		s.metrics.RecordLogin(ctx, result, "")
		s.audit.Log(ctx, event.Fail(result, err))

		status := apierror.StatusOf(err)
		if status >= http.StatusInternalServerError {
			logger.Error("login failed", logging.Username(req.Username), logging.Err(err))
		} else {
			logger.Info("login rejected", logging.Username(req.Username), logging.Kind(string(apierror.KindOf(err))))
		}
		writeError(w, err, MsgInternalError)
		return
	}

	name := entry.DisplayNameOr(req.Username)
	token, err := s.sessions.Issue(session.Identity{
		UserID: req.Username,
		Email:  entry.Mail,
		Name:   name,
	})
	if err != nil {
		s.metrics.RecordLogin(ctx, instrumentation.LoginResultError, entry.Mail)
		s.audit.Log(ctx, event.WithUser(req.Username, entry.Mail).Fail("token_issue", err))
		logger.Error("failed to issue session token", logging.Username(req.Username), logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: MsgInternalError})
		return
	}

	s.metrics.RecordLogin(ctx, instrumentation.LoginResultSuccess, entry.Mail)
	instrumentation.SetUserDomain(ctx, entry.Mail)
	s.audit.Log(ctx, event.WithUser(req.Username, entry.Mail).Succeed())

	writeJSON(w, http.StatusOK, loginResponse{
		Message: MsgLoginSuccess,
		User:    userResponse{Name: name, Email: entry.Mail},
		Token:   token,
	})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := IdentityFromContext(ctx)
	event := instrumentation.NewAuditEvent(instrumentation.AuditActionListMeetings).
		WithUser(identity.UserID, identity.Email).
		WithSpanContext(ctx)

	query := r.URL.Query()
	list, err := s.meetings.Availability(ctx, query.Get("from"), query.Get("to"))
	if err != nil {
		s.audit.Log(ctx, event.Fail(string(apierror.KindOf(err)), err))
		writeError(w, err, MsgAvailabilityFailed)
		return
	}

	s.audit.Log(ctx, event.Succeed())
	writeJSON(w, http.StatusOK, availabilityResponse{Meetings: list})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := IdentityFromContext(ctx)
	event := instrumentation.NewAuditEvent(instrumentation.AuditActionScheduleMeeting).
		WithUser(identity.UserID, identity.Email).
		WithSpanContext(ctx)

	var req meetings.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.audit.Log(ctx, event.Fail(string(apierror.KindValidation), err))
		writeJSON(w, http.StatusBadRequest, scheduleResponse{Message: MsgInvalidBody})
		return
	}

	meeting, err := s.meetings.Schedule(ctx, meetings.Scheduler{Name: identity.Name, Email: identity.Email}, req)
	if err != nil {
		s.audit.Log(ctx, event.Fail(string(apierror.KindOf(err)), err))
		writeJSON(w, apierror.StatusOf(err), scheduleResponse{
			Message: apierror.PublicMessage(err, MsgScheduleFailed),
		})
		return
	}

	s.audit.Log(ctx, event.WithMeeting(meeting.ID).Succeed())
	writeJSON(w, http.StatusCreated, scheduleResponse{Success: true, Meeting: meeting})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if s.static != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) && !isAPIPath(r.URL.Path) {
		s.static.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusNotFound, messageResponse{Message: MsgNotFound})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: MsgMethodNotAllowed})
}

func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
