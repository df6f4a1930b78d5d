// Package preference implements the preference-match pipeline:
// SpecScraper -> CompatibilityChecker -> PreferenceRanker.
package preference

import (
	"github.com/itsneelabh/contractengine/pipeline"
)

// HardConstraint re-exports pipeline.HardConstraint.
type HardConstraint = pipeline.HardConstraint

// Compatibility is one item's per-item compatibility verdict, produced
// by CompatibilityChecker.
type Compatibility struct {
	ProductName string `json:"product_name"`
	Compatible  bool   `json:"compatible"`
	Reason      string `json:"reason,omitempty"`
}

// Ranking method tags written to the result envelope's ranking_method
// field.
const (
	RankingMethodPipeline = "pipeline"
	RankingMethodFallback = "fallback"
)

// Result status values.
const (
	StatusSuccess    = "success"
	StatusNoProducts = "no_products"
	StatusFallback   = "fallback"
	StatusError      = "error"
)

// maxInputItems bounds CompatibilityChecker/PreferenceRanker input;
// oversized input is truncated to the first 50 items with a warning.
const maxInputItems = 50

// TopK is the default PreferenceRanker result count.
const TopK = 3
