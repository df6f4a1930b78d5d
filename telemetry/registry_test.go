package telemetry

import (
	"context"
	"fmt"
	"testing"
)

func TestRegistryEmissionsDoNotPanicWithoutMeterProvider(t *testing.T) {
	r := NewRegistry("test")
	ctx := context.Background()

	r.Counter("fsm.transitions", "from", "start", "to", "search")
	r.Histogram("pipeline.duration_ms", 12.5, "pipeline", "product_search")
	r.Gauge("circuit_breaker.open", 1, "name", "redis")
	r.EmitWithContext(ctx, "pipeline.duration_ms", 3.2, "pipeline", "preference_match")
}

func TestRegistryCachesInstruments(t *testing.T) {
	r := NewRegistry("test")
	r.Counter("hits")
	r.Counter("hits")
	if len(r.counters) != 1 {
		t.Fatalf("expected one cached counter, got %d", len(r.counters))
	}
}

func TestGuardLabelCapsCardinality(t *testing.T) {
	r := NewRegistry("test")

	for i := 0; i < maxLabelValues; i++ {
		v := fmt.Sprintf("v%d", i)
		if got := r.guardLabel("session_id", v); got != v {
			t.Fatalf("value %q under the cap must pass through, got %q", v, got)
		}
	}
	if got := r.guardLabel("session_id", "one-too-many"); got != "overflow" {
		t.Fatalf("expected overflow past the cap, got %q", got)
	}
	// Already-seen values keep passing through after the cap is hit.
	if got := r.guardLabel("session_id", "v0"); got != "v0" {
		t.Fatalf("previously seen value must still pass, got %q", got)
	}
	// Other label keys are unaffected.
	if got := r.guardLabel("pipeline", "product_search"); got != "product_search" {
		t.Fatalf("independent key must not share the cap, got %q", got)
	}
}

func TestAttrsDropsOddTrailingLabel(t *testing.T) {
	r := NewRegistry("test")
	attrs := r.attrs([]string{"a", "1", "dangling"})
	if len(attrs) != 1 {
		t.Fatalf("expected one attribute, got %d", len(attrs))
	}
}

func TestSetAndGetRegistry(t *testing.T) {
	prev := GetRegistry()
	defer SetRegistry(prev)

	r := NewRegistry("test")
	SetRegistry(r)
	if GetRegistry() != r {
		t.Fatalf("expected the registry just set")
	}
}

func TestBaggageRoundTrip(t *testing.T) {
	ctx := WithBaggage(context.Background(), "session_id", "s1", "turn", "3")

	got := BaggageFrom(ctx)
	if got["session_id"] != "s1" || got["turn"] != "3" {
		t.Fatalf("unexpected baggage %v", got)
	}
	if r := NewRegistry("test"); r.GetBaggage(ctx)["session_id"] != "s1" {
		t.Fatalf("registry must expose the same baggage")
	}
}

func TestBaggageSkipsInvalidAndOddLabels(t *testing.T) {
	ctx := WithBaggage(context.Background(), "ok", "1", "bad key!", "x", "dangling")
	got := BaggageFrom(ctx)
	if got["ok"] != "1" {
		t.Fatalf("valid label must survive, got %v", got)
	}
	if len(got) != 1 {
		t.Fatalf("invalid/odd labels must be skipped, got %v", got)
	}
}

func TestInitInstallsGlobalRegistry(t *testing.T) {
	prev := GetRegistry()
	defer SetRegistry(prev)

	p, err := Init(Config{ServiceName: "test-engine"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Shutdown(context.Background())

	if GetRegistry() != p.Registry() {
		t.Fatalf("Init must install its registry globally")
	}
}
