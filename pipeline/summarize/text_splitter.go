package summarize

import (
	"context"
	"strings"

	"github.com/itsneelabh/contractengine/core"
)

// maxChunkTokens bounds each chunk handed to the T5-style backend, which
// (like most seq2seq summarizers) has a bounded input window.
const maxChunkTokens = 400

// TextSplitter concatenates the input messages and splits the result
// into bounded chunks for the Summarizer stage.
type TextSplitter struct {
	logger core.Logger
}

// NewTextSplitter constructs a TextSplitter.
func NewTextSplitter(logger core.Logger) *TextSplitter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &TextSplitter{logger: logger}
}

// Name implements pipeline.Component.
func (s *TextSplitter) Name() string { return "text_splitter" }

// Run reads input["messages"] ([]string) and writes "concatenated"
// (the joined text) and "chunks" ([]string, token-bounded).
func (s *TextSplitter) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	messages, _ := input["messages"].([]string)
	concatenated := strings.Join(messages, " ")
	return map[string]any{
		"concatenated": concatenated,
		"chunks":       splitIntoChunks(concatenated, maxChunkTokens),
	}, nil
}

// splitIntoChunks greedily packs whitespace-delimited words into chunks
// no larger than maxTokens (estimated at ~4 chars/token, matching
// memory.EstimateTokens' heuristic).
func splitIntoChunks(text string, maxTokens int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	maxChars := maxTokens * 4

	var chunks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
