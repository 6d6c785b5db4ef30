// Package tracer provides a lightweight tracing abstraction for the API
// client.
//
// The client emits one span per HTTP request plus child spans for retries
// and token refreshes, but the rest of the codebase should not couple to
// OpenTelemetry directly. This package defines the minimal interface the
// transport needs, with an OTel adapter for production and a no-op
// implementation for tests.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// If err is non-nil, the span is marked as failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes.
	// The returned context carries the span and should be passed to child
	// operations. The span must be ended by calling Span.End().
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the transport.
const (
	SpanRequest = "api.request"
	SpanRefresh = "api.token_refresh"
)

// Attribute keys used by the transport.
const (
	AttrMethod     = "http.method"
	AttrPath       = "http.path"
	AttrStatus     = "http.status"
	AttrAttempt    = "http.attempt"
	AttrIdempotent = "http.idempotent"
)

// Event names used by the transport.
const (
	EventRetryScheduled = "retry.scheduled"
	EventTokenRefreshed = "token.refreshed"
)
