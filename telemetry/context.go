package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// tracerName scopes every span this engine starts.
const tracerName = "contractengine"

// StartSpan opens a span under the engine tracer. Callers defer
// span.End(); with no tracer provider installed the span is a no-op.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

// WithBaggage attaches request-scoped labels to ctx as W3C baggage, so
// they flow through every log line and metric emitted downstream.
// Labels are key-value pairs; an invalid key/value or odd trailing
// label is skipped rather than failing the request.
//
//	ctx = telemetry.WithBaggage(ctx, "session_id", sessionID)
func WithBaggage(ctx context.Context, labels ...string) context.Context {
	bag := baggage.FromContext(ctx)
	for i := 0; i+1 < len(labels); i += 2 {
		member, err := baggage.NewMember(labels[i], labels[i+1])
		if err != nil {
			continue
		}
		next, err := bag.SetMember(member)
		if err != nil {
			continue
		}
		bag = next
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// BaggageFrom returns ctx's baggage as a plain map; empty when none.
func BaggageFrom(ctx context.Context) map[string]string {
	bag := baggage.FromContext(ctx)
	members := bag.Members()
	if len(members) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m.Key()] = m.Value()
	}
	return out
}
