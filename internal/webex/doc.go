// Package webex is a small client for the Webex meetings REST API.
//
// Calls are authenticated with an access token obtained from a long-lived
// refresh token. TokenCache holds the current access token and refreshes it
// once it is within five minutes of expiry; Client asks the cache for a token
// before every request.
package webex
