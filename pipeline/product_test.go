package pipeline

import (
	"math"
	"testing"
)

func TestProductNumericPriceMissingIsInfinity(t *testing.T) {
	p := Product{Name: "widget"}
	if !math.IsInf(p.NumericPrice(), 1) {
		t.Errorf("expected +Inf for missing price, got %v", p.NumericPrice())
	}
}

func TestProductNumericPriceParsesCurrencyString(t *testing.T) {
	p := Product{Price: "$1,299.99"}
	if got := p.NumericPrice(); math.Abs(got-1299.99) > 0.001 {
		t.Errorf("expected 1299.99, got %v", got)
	}
}

func TestProductNumericPriceNumeric(t *testing.T) {
	p := Product{Price: 42.5}
	if got := p.NumericPrice(); got != 42.5 {
		t.Errorf("expected 42.5, got %v", got)
	}
}

func TestProductNumericRatingMissingIsZero(t *testing.T) {
	p := Product{Name: "widget"}
	if got := p.NumericRating(); got != 0 {
		t.Errorf("expected 0 for missing rating, got %v", got)
	}
}

func TestProductNumericRatingParsesString(t *testing.T) {
	p := Product{Rating: "4.5 stars"}
	if got := p.NumericRating(); math.Abs(got-4.5) > 0.001 {
		t.Errorf("expected 4.5, got %v", got)
	}
}
