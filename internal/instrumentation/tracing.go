package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name used for all meetgate spans.
const TracerName = "github.com/teemow/meetgate"

// Span attribute keys.
const (
	// SpanAttrService is the upstream service (ldap, webex).
	SpanAttrService = "upstream.service"

	// SpanAttrOperation is the upstream operation (bind, search, list_meetings).
	SpanAttrOperation = "upstream.operation"

	// SpanAttrUserDomain is the email domain of the acting user.
	SpanAttrUserDomain = "meetgate.user_domain"

	// SpanAttrResultCount is the number of items returned by an upstream call.
	SpanAttrResultCount = "meetgate.result_count"
)

// StartSpan starts a span with the given name and attributes.
// The caller must end the span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartUpstreamSpan starts a client span for a call to the directory or to Webex.
// The span is named "<service>.<operation>".
func StartUpstreamSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	all = append(all, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, service+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records err on the span and marks it failed. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the span status from err and ends it.
//
//	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceLDAP, "search")
//	defer func() { instrumentation.EndSpan(span, err) }()
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// SetUserDomain records the email domain of the acting user on the span in
// ctx. The full address is never recorded.
func SetUserDomain(ctx context.Context, email string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(SpanAttrUserDomain, ExtractUserDomain(email)))
}

// GetTraceID returns the trace ID of the span in ctx, or "" if there is none.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "" if there is none.
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
