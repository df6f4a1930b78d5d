package summarize

import (
	"context"
	"strings"

	"github.com/itsneelabh/contractengine/core"
)

// Summarizer runs the T5-style backend over the chunks produced by
// TextSplitter, joining and bounding the result. Falls back to a
// deterministic extractive summary when no backend is configured or the
// backend call fails, and ultimately to a truncation of the raw
// concatenated text if even that produces nothing usable.
type Summarizer struct {
	backend ModelBackend
	device  Device
	logger  core.Logger
}

// NewSummarizer constructs a Summarizer. backend may be nil to always
// use the deterministic extractive fallback; device defaults to CPU.
func NewSummarizer(backend ModelBackend, device Device, logger core.Logger) *Summarizer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if device == "" {
		device = DeviceCPU
	}
	return &Summarizer{backend: backend, device: device, logger: logger}
}

// Name implements pipeline.Component.
func (s *Summarizer) Name() string { return "summarizer" }

// Run reads input["chunks"] ([]string) and input["concatenated"]
// (string), writing "summary" and "method" ("model"|"extractive"|
// "truncation").
func (s *Summarizer) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	chunks, _ := input["chunks"].([]string)
	concatenated, _ := input["concatenated"].(string)

	if s.backend != nil {
		if summary, ok := s.summarizeWithBackend(ctx, chunks); ok {
			return map[string]any{"summary": summary, "method": "model"}, nil
		}
	}

	if summary := extractiveSummary(concatenated); summary != "" {
		return map[string]any{"summary": summary, "method": "extractive"}, nil
	}

	return map[string]any{"summary": truncate(concatenated, truncationFallbackChars), "method": "truncation"}, nil
}

func (s *Summarizer) summarizeWithBackend(ctx context.Context, chunks []string) (string, bool) {
	if len(chunks) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out, err := s.backend.Summarize(ctx, chunk, s.device)
		if err != nil {
			s.logger.WarnWithContext(ctx, "summarizer backend call failed, falling back to extractive summary", map[string]interface{}{
				"error": err.Error(),
			})
			return "", false
		}
		parts = append(parts, strings.TrimSpace(out))
	}
	return boundTokens(strings.Join(parts, " "), maxSummaryTokens), true
}

// extractiveSummary is the deterministic fallback: the leading sentences
// of the concatenated text, bounded to maxSummaryTokens.
func extractiveSummary(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return boundTokens(text, maxSummaryTokens)
}

// boundTokens truncates s to approximately maxTokens (the same
// chars-per-token heuristic used throughout the memory package),
// breaking on a word boundary rather than mid-word.
func boundTokens(s string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(s) <= maxChars {
		return s
	}
	cut := strings.LastIndexByte(s[:maxChars], ' ')
	if cut <= 0 {
		cut = maxChars
	}
	return strings.TrimSpace(s[:cut])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
