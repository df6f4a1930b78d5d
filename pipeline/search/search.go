package search

import (
	"context"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// maxAdapterItems is the contract with the shopping adapter: it never
// returns more than this many raw items.
const maxAdapterItems = 100

// Search is the product-search pipeline's entry node: it calls the
// external shopping adapter and normalizes its result (or failure) into
// the pipeline's map[string]any convention.
type Search struct {
	adapter ShoppingAdapter
	logger  core.Logger
}

// NewSearch constructs the Search component.
func NewSearch(adapter ShoppingAdapter, logger core.Logger) *Search {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Search{adapter: adapter, logger: logger}
}

// Name implements pipeline.Component.
func (s *Search) Name() string { return "search" }

// Run calls the shopping adapter for input["query"]. On adapter error it
// returns {items: [], error} rather than propagating the error, so the
// pipeline can continue to ResultLimiter with an empty result and let
// the FSM decide how to surface it.
func (s *Search) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, _ := input["query"].(string)

	items, err := s.adapter.Search(ctx, query)
	if err != nil {
		s.logger.WarnWithContext(ctx, "shopping adapter search failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return map[string]any{
			"items": []pipeline.Product{},
			"error": err.Error(),
		}, nil
	}

	if len(items) > maxAdapterItems {
		items = items[:maxAdapterItems]
	}

	return map[string]any{
		"items":       items,
		"total_found": len(items),
	}, nil
}
