package search

import (
	"context"

	"github.com/itsneelabh/contractengine/pipeline"
)

// DefaultMaxResults is ResultLimiter's default max.
const DefaultMaxResults = 50

// Status values written by ResultLimiter.
const (
	StatusOK             = "ok"
	StatusTooManyResults = "too_many_results"
	StatusError          = "error"
)

// ResultLimiter is the search pipeline's terminal node: if the item
// count exceeds max, it reports too_many_results with an empty item
// list so the FSM routes to refine_constraints instead of presenting
// an unwieldy list.
type ResultLimiter struct {
	max int
}

// NewResultLimiter constructs a ResultLimiter with the given cap (0 uses
// DefaultMaxResults).
func NewResultLimiter(max int) *ResultLimiter {
	if max <= 0 {
		max = DefaultMaxResults
	}
	return &ResultLimiter{max: max}
}

// Name implements pipeline.Component.
func (r *ResultLimiter) Name() string { return "result_limiter" }

// Run reads input["items"], input["total_found"], input["attributes"],
// and a possible upstream input["error"], producing the final search
// pipeline result envelope.
func (r *ResultLimiter) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	if errMsg, ok := input["error"].(string); ok && errMsg != "" {
		return map[string]any{
			"status": StatusError,
			"items":  []pipeline.Product{},
			"error":  errMsg,
		}, nil
	}

	items, _ := input["items"].([]pipeline.Product)
	attributes, _ := input["attributes"].([]string)
	totalFound := len(items)
	if tf, ok := input["total_found"].(int); ok {
		totalFound = tf
	}

	if len(items) > r.max {
		return map[string]any{
			"status":      StatusTooManyResults,
			"items":       []pipeline.Product{},
			"total_found": totalFound,
			"attributes":  attributes,
			"max_allowed": r.max,
		}, nil
	}

	return map[string]any{
		"status":      StatusOK,
		"items":       items,
		"total_found": totalFound,
		"attributes":  attributes,
	}, nil
}
