// Package summarize implements the rolling summarizer pipeline:
// TextSplitter -> Summarizer(T5-style), run on CPU by default and GPU
// when configured. The T5 model itself is an external dependency, the
// same way the product search pipeline treats the shopping adapter, so
// it is represented here as a ModelBackend collaborator with a
// deterministic extractive fallback when none is configured or the
// backend call fails.
package summarize

import "context"

// Device selects where the T5-style backend runs.
type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

// ModelBackend abstracts the T5-style abstractive summarization model.
// A production binding would wrap a local inference runtime; this
// engine ships only the interface and the deterministic fallback.
type ModelBackend interface {
	Summarize(ctx context.Context, text string, device Device) (string, error)
}

// minSummaryTokens/maxSummaryTokens bound the summary length.
const (
	minSummaryTokens = 30
	maxSummaryTokens = 150
)

// truncationFallbackChars bounds the degraded-mode output (first 200
// chars + "...").
const truncationFallbackChars = 200
