package summarize

import (
	"context"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// RollingSummarizer wires TextSplitter -> Summarizer into the linear
// pipeline.Pipeline chain and exposes memory.Summarizer so the memory
// manager can consume it without importing this package directly.
type RollingSummarizer struct {
	pipeline *pipeline.Pipeline
	logger   core.Logger
}

// NewRollingSummarizer constructs the rolling summarizer pipeline.
// backend may be nil to always use the deterministic fallback.
func NewRollingSummarizer(backend ModelBackend, device Device, logger core.Logger) *RollingSummarizer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	p := pipeline.New("rolling_summarizer", logger,
		NewTextSplitter(logger),
		NewSummarizer(backend, device, logger),
	)
	return &RollingSummarizer{pipeline: p, logger: logger}
}

// Summarize implements memory.Summarizer. On any pipeline failure it
// degrades to the first 200 characters of the concatenated messages
// rather than surfacing the error to the caller; the
// memory manager already treats a Summarize error as signal to apply
// its own truncation fallback, so this keeps both fallback paths
// consistent.
func (r *RollingSummarizer) Summarize(ctx context.Context, messages []string) (string, error) {
	out, err := r.pipeline.Run(ctx, map[string]any{"messages": messages})
	if err != nil {
		concatenated := ""
		for i, m := range messages {
			if i > 0 {
				concatenated += " "
			}
			concatenated += m
		}
		return truncate(concatenated, truncationFallbackChars), nil
	}
	summary, _ := out["summary"].(string)
	return summary, nil
}
