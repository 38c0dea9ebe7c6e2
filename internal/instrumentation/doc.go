// Package instrumentation wires OpenTelemetry metrics, tracing and audit
// logging for meetgate.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: by method, route pattern and status
//   - upstream_operations_total, upstream_operation_duration_seconds: directory and Webex calls by service, operation and status
//   - login_attempts_total: by result (success, invalid_credentials, not_found, ...)
//   - webex_token_refresh_total: by result
//   - meetings_scheduled_total: by status
//   - http_rate_limited_total: by route pattern
//
// # Tracing
//
// Client spans named "<service>.<operation>" wrap every call to the directory
// (ldap.search, ldap.bind) and to Webex (webex.token_refresh,
// webex.list_meetings, webex.create_meeting).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable metrics and tracing (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector endpoint for the otlp exporters
//   - OTEL_TRACES_SAMPLER_ARG: sampling ratio (default: 0.1)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII: audit trail controls
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordLogin(ctx, instrumentation.LoginResultSuccess, email)
package instrumentation
