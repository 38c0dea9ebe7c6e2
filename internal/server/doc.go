// Package server exposes meetgate over HTTP.
//
// # Routes
//
//   - POST /api/auth/login authenticates against the directory and returns a session token
//   - GET /api/meetings/availability lists the host's meetings in a time window
//   - POST /api/meetings/schedule creates a meeting on behalf of the caller
//   - /healthz, /readyz and /healthz/detailed report process health
//
// Meeting routes require an "Authorization: Bearer <token>" header carrying a
// session token issued by the login route. Requests without a token are
// rejected with 401, requests with an invalid or expired token with 403.
//
// When a static directory is configured, any other GET request is served
// from it, falling back to index.html so a single-page front end can handle
// client-side routes.
//
// # Security Features
//
//   - Login attempts are rate limited per client IP
//   - Upstream failures are logged in full but reported to clients with a generic message
//   - Audit events are written for logins and meeting operations
//
// Prometheus metrics are served on a separate listener by MetricsServer so
// they are not reachable through the public API port.
package server
