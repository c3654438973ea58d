// Package instrumentation wraps OpenTelemetry tracing for the proxy's
// outbound calls.
//
// Span attributes carry metadata only. Access tokens, identity tokens,
// authorization codes and client secrets must never be set as attribute
// values.
package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/brizzai/oauth-proxy"

// Span attribute keys
const (
	AttrProviderName     = "provider.name"
	AttrProviderStatus   = "provider.status"
	AttrErrorKind        = "oauth.error_kind"
	AttrPKCE             = "oauth.pkce"
	AttrBackendStatus    = "backend.status"
	AttrReferralPresent  = "backend.referral_present"
	AttrHTTPStatusCode   = "http.status_code"
	AttrRedirectURIValid = "oauth.redirect_uri_valid"
)

// StartSpan starts a span on the global tracer provider. Until Setup installs
// an SDK provider this is a no-op span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
