package otelx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// Outbox rows and job tables carry the W3C trace context as plain strings so
// async work links back to the request that caused it. Only traceparent and
// tracestate survive the round trip; baggage does not.
var tc propagation.TraceContext

// TraceContextStrings serializes the active span's trace context.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := propagation.MapCarrier{}
	tc.Inject(ctx, carrier)
	return carrier.Get("traceparent"), carrier.Get("tracestate")
}

// ContextWithTraceContext restores a context from stored trace context strings.
func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" && tracestate == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	carrier.Set("traceparent", traceparent)
	if tracestate != "" {
		carrier.Set("tracestate", tracestate)
	}
	return tc.Extract(ctx, carrier)
}
