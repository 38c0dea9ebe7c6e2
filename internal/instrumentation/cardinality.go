package instrumentation

import "strings"

// ExtractUserDomain reduces an email address to its domain for use as a
// metric label. Anything that is not a well-formed address maps to "unknown".
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return "unknown"
}

// Operation names for upstream metrics and spans.
const (
	OperationBind          = "bind"
	OperationSearch        = "search"
	OperationDial          = "dial"
	OperationTokenRefresh  = "token_refresh"
	OperationListMeetings  = "list_meetings"
	OperationCreateMeeting = "create_meeting"
)
