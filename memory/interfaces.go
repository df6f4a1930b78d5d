package memory

import (
	"context"
	"errors"
)

var errEnvelopeMissingData = errors.New("memory: envelope missing data field")

// BufferStore is the ephemeral per-session message tier.
// Implementations enforce the overflow policy (trim to MaxMessages, then
// to MaxTokens) after every insert.
type BufferStore interface {
	AddMessage(ctx context.Context, sessionID string, msg Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
	Info(ctx context.Context, sessionID string) (BufferInfo, error)
	// PopOldest removes and returns up to n of the oldest messages,
	// used by the summarization trigger to hand messages to the
	// summarizer before evicting them from the buffer.
	PopOldest(ctx context.Context, sessionID string, n int) ([]Message, error)
}

// SummaryStore is the rolling-summary tier: a current consolidated
// scalar plus an ordered history of summary records.
type SummaryStore interface {
	AddSummary(ctx context.Context, sessionID string, s Summary) error
	CurrentSummary(ctx context.Context, sessionID string) (string, error)
	History(ctx context.Context, sessionID string) ([]Summary, error)
	Clear(ctx context.Context, sessionID string) error
}

// SemanticStore is the long-term vector-indexed tier, keyed by user id
// (it is meant to outlive any single session).
type SemanticStore interface {
	AddMemory(ctx context.Context, userID, text, memType string, metadata map[string]interface{}) error
	SearchMemories(ctx context.Context, userID, query string, topK int, threshold float64) ([]SemanticMemory, error)
	DeleteUserMemories(ctx context.Context, userID string) error
}

// VectorMatch is one semantic-search hit.
type VectorMatch struct {
	ID       int64
	Score    float64
	Metadata map[string]interface{}
	Content  string
}

// VectorStore abstracts the external cosine-indexed vector database.
// The reference collection is `semantic_memory`:
// id/user_id/content/embedding/metadata/timestamp, IVF-FLAT nlist=128.
type VectorStore interface {
	Upsert(ctx context.Context, mem SemanticMemory, embedding []float32) (int64, error)
	Search(ctx context.Context, userID string, embedding []float32, topK int) ([]VectorMatch, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// Embedder abstracts the external embedding model (out of scope).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PIIRedactor abstracts the external PII-redaction collaborator,
// called from semantic-store writes and summary persistence.
type PIIRedactor interface {
	Redact(ctx context.Context, text string, method string) (string, error)
	DetectPII(ctx context.Context, text string) ([]string, error)
	IsTextSafeForStorage(ctx context.Context, text string, threshold float64) (bool, error)
}

// SummaryMirrorStore is the best-effort SQL mirror of the current
// summary (one session table with a short_summary text column).
// Write failures here must never fail the user turn.
type SummaryMirrorStore interface {
	UpsertSummary(ctx context.Context, sessionID string, summary string) error
}

// Summarizer abstracts the rolling summariser pipeline:
// TextSplitter -> T5-style Summarizer, degrading to a truncation
// fallback on failure. Defined here (rather than imported from the
// pipeline/summarize package) so the memory manager has no dependency
// on the pipeline package; orchestrator wiring supplies the
// pipeline/summarize implementation.
type Summarizer interface {
	Summarize(ctx context.Context, messages []string) (string, error)
}
