package webex

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the Webex API.
type APIError struct {
	StatusCode int
	Message    string
	TrackingID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "webex API returned %d", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.TrackingID != "" {
		fmt.Fprintf(&b, " (tracking id %s)", e.TrackingID)
	}
	return b.String()
}

// errorBody is the error envelope Webex sends with 4xx and 5xx responses.
type errorBody struct {
	Message    string `json:"message"`
	TrackingID string `json:"trackingId"`
	Errors     []struct {
		Description string `json:"description"`
	} `json:"errors"`
}

// newAPIError builds an APIError from a response status and body. Bodies that
// are not Webex error JSON are kept verbatim, truncated.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Message = eb.Message
		apiErr.TrackingID = eb.TrackingID
		if apiErr.Message == "" && len(eb.Errors) > 0 {
			apiErr.Message = eb.Errors[0].Description
		}
		return apiErr
	}

	const maxBody = 256
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxBody {
		msg = msg[:maxBody] + "..."
	}
	apiErr.Message = msg
	return apiErr
}
