// Package search implements the product search pipeline:
// Search -> AttributeAnalyzer -> ResultLimiter.
package search

import (
	"context"

	"github.com/itsneelabh/contractengine/pipeline"
)

// ShoppingAdapter abstracts the external shopping API.
// Errors may be returned in-band as items carrying an
// "error" field or as a Go error; the Search component tolerates both.
type ShoppingAdapter interface {
	Search(ctx context.Context, query string) ([]pipeline.Product, error)
}

// HardConstraint re-exports pipeline.HardConstraint for callers that only
// import the search package.
type HardConstraint = pipeline.HardConstraint
