// Package tracer provides a small tracing abstraction for backend and auth
// provider calls. Callers depend on Tracer, never on OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: tests and the default client
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanBackendCall  = "backend.call"
	SpanProviderCall = "auth_provider.call"
)

// Attribute keys.
const (
	AttrEndpoint   = "endpoint"
	AttrMethod     = "http.method"
	AttrStatusCode = "http.status_code"
	AttrRequestID  = "request_id"
	AttrOperation  = "operation"
)
