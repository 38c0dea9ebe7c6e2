package webex

// Meeting is a Webex meeting as returned by the meetings API.
type Meeting struct {
	ID                 string `json:"id,omitempty"`
	MeetingSeriesID    string `json:"meetingSeriesId,omitempty"`
	ScheduledMeetingID string `json:"scheduledMeetingId,omitempty"`
	MeetingNumber      string `json:"meetingNumber,omitempty"`
	Title              string `json:"title,omitempty"`
	Agenda             string `json:"agenda,omitempty"`
	Password           string `json:"password,omitempty"`
	MeetingType        string `json:"meetingType,omitempty"`
	State              string `json:"state,omitempty"`
	Timezone           string `json:"timezone,omitempty"`

	// Start and End are ISO 8601 timestamps as sent by Webex
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	HostUserID      string `json:"hostUserId,omitempty"`
	HostDisplayName string `json:"hostDisplayName,omitempty"`
	HostEmail       string `json:"hostEmail,omitempty"`

	// WebLink is the URL participants use to join
	WebLink    string `json:"webLink,omitempty"`
	SIPAddress string `json:"sipAddress,omitempty"`
	SiteURL    string `json:"siteUrl,omitempty"`
}

// Invitee is a meeting attendee identified by email.
type Invitee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// CreateMeetingRequest is the body of a create-meeting call.
type CreateMeetingRequest struct {
	Title     string    `json:"title"`
	Agenda    string    `json:"agenda,omitempty"`
	Password  string    `json:"password,omitempty"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Timezone  string    `json:"timezone,omitempty"`
	HostEmail string    `json:"hostEmail,omitempty"`
	Invitees  []Invitee `json:"invitees,omitempty"`
}

// ListMeetingsParams filters a list-meetings call.
type ListMeetingsParams struct {
	HostEmail string
	From      string
	To        string
}

type listMeetingsResponse struct {
	Items []Meeting `json:"items"`
}

func (r *listMeetingsResponse) resultCount() int { return len(r.Items) }

// resultCounter is implemented by list responses whose size is recorded on
// the request span.
type resultCounter interface {
	resultCount() int
}
