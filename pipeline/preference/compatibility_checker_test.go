package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

type fakeAIClient struct {
	content string
	err     error
}

func (f *fakeAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.AIResponse{Content: f.content}, nil
}

func sampleItems() []pipeline.Product {
	return []pipeline.Product{
		{Name: "Budget GPU", Price: "$299.00", Rating: 4.1, Brand: "Acme"},
		{Name: "Flagship GPU", Price: "$899.00", Rating: 4.8, Brand: "Zenith"},
	}
}

func TestCompatibilityCheckerNoConstraintsPassesThrough(t *testing.T) {
	c := NewCompatibilityChecker(nil, nil)
	out, err := c.Run(context.Background(), map[string]any{"items": sampleItems()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := out["items"].([]pipeline.Product)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if _, ok := out["fail_open"]; ok {
		t.Fatalf("fail_open should not be set when there are no constraints")
	}
}

func TestCompatibilityCheckerLocalEvaluationNoAI(t *testing.T) {
	c := NewCompatibilityChecker(nil, nil)
	constraints := []HardConstraint{{Type: "price", Operator: "<=", Value: 500.0}}
	out, err := c.Run(context.Background(), map[string]any{
		"items":       sampleItems(),
		"constraints": constraints,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := out["items"].([]pipeline.Product)
	if len(items) != 1 || items[0].Name != "Budget GPU" {
		t.Fatalf("expected only Budget GPU to pass, got %+v", items)
	}
	if _, ok := out["fail_open"]; ok {
		t.Fatalf("local evaluation must not be tagged fail_open")
	}
}

func TestCompatibilityCheckerAISuccessUsesLLMVerdicts(t *testing.T) {
	ai := &fakeAIClient{content: "compatible\nincompatible"}
	c := NewCompatibilityChecker(ai, nil)
	constraints := []HardConstraint{{Type: "general", Operator: "contains", Value: "quiet"}}
	out, err := c.Run(context.Background(), map[string]any{
		"items":       sampleItems(),
		"constraints": constraints,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := out["items"].([]pipeline.Product)
	if len(items) != 1 || items[0].Name != "Budget GPU" {
		t.Fatalf("expected only Budget GPU compatible per LLM verdict, got %+v", items)
	}
	if _, ok := out["fail_open"]; ok {
		t.Fatalf("successful LLM evaluation must not be tagged fail_open")
	}
}

func TestCompatibilityCheckerAIFailureFailsOpen(t *testing.T) {
	ai := &fakeAIClient{err: errors.New("provider unavailable")}
	c := NewCompatibilityChecker(ai, nil)
	constraints := []HardConstraint{{Type: "price", Operator: "<=", Value: 500.0}}
	out, err := c.Run(context.Background(), map[string]any{
		"items":       sampleItems(),
		"constraints": constraints,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := out["items"].([]pipeline.Product)
	if len(items) != 2 {
		t.Fatalf("expected all items to pass when LLM fails open, got %d", len(items))
	}
	if v, ok := out["fail_open"]; !ok || v != true {
		t.Fatalf("expected fail_open=true, got %v", out["fail_open"])
	}
}

func TestCompatibilityCheckerAIUnparsableResponseFailsOpen(t *testing.T) {
	ai := &fakeAIClient{content: "unexpected free-form answer that doesn't line up"}
	c := NewCompatibilityChecker(ai, nil)
	constraints := []HardConstraint{{Type: "price", Operator: "<=", Value: 500.0}}
	out, err := c.Run(context.Background(), map[string]any{
		"items":       sampleItems(),
		"constraints": constraints,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := out["fail_open"]; !ok || v != true {
		t.Fatalf("unparsable LLM response should fail open, got %v", out["fail_open"])
	}
}

func TestSatisfiesConstraintBrandMatch(t *testing.T) {
	item := pipeline.Product{Name: "Zenith Flagship GPU", Brand: "Zenith"}
	c := HardConstraint{Type: "brand", Operator: "==", Value: "Zenith"}
	if !satisfiesConstraint(item, c) {
		t.Fatalf("expected brand match to be satisfied")
	}
}

func TestSatisfiesNumericOperators(t *testing.T) {
	cases := []struct {
		value    float64
		operator string
		target   interface{}
		want     bool
	}{
		{10, "<=", 10.0, true},
		{10, "<", 10.0, false},
		{10, ">=", 9.0, true},
		{10, ">", 10.0, false},
		{10, "==", 10.0, true},
	}
	for _, tc := range cases {
		got := satisfiesNumeric(tc.value, tc.operator, tc.target)
		if got != tc.want {
			t.Errorf("satisfiesNumeric(%v,%q,%v) = %v, want %v", tc.value, tc.operator, tc.target, got, tc.want)
		}
	}
}
