package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/itsneelabh/contractengine/core"
)

const (
	// DefaultSemanticTopK is the default result count for SearchMemories.
	DefaultSemanticTopK = 3
	// DefaultSemanticThreshold is the minimum cosine similarity returned.
	DefaultSemanticThreshold = 0.7
	// PIIRedactionMethod is the method passed to the PII redactor when a
	// text is unsafe to store verbatim but not refused outright.
	PIIRedactionMethod = "placeholder"
)

// VectorSemanticStore implements SemanticStore against an injected
// VectorStore + Embedder, gating every write through a PIIRedactor:
// text that IsTextSafeForStorage flags unsafe is stored redacted (with
// PIIRedacted=true); the write is refused only when the safety check
// or the redaction itself returns an error.
type VectorSemanticStore struct {
	store    VectorStore
	embedder Embedder
	redactor PIIRedactor
	logger   core.Logger
}

// NewVectorSemanticStore constructs a VectorSemanticStore. redactor may
// be nil to skip the PII gate (not recommended for production wiring).
func NewVectorSemanticStore(store VectorStore, embedder Embedder, redactor PIIRedactor, logger core.Logger) *VectorSemanticStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &VectorSemanticStore{store: store, embedder: embedder, redactor: redactor, logger: logger}
}

// AddMemory embeds and stores text under userID, redacting or refusing
// it first if the PII redactor flags it unsafe.
func (v *VectorSemanticStore) AddMemory(ctx context.Context, userID, text, memType string, metadata map[string]interface{}) error {
	piiRedacted := false

	if v.redactor != nil {
		safe, err := v.redactor.IsTextSafeForStorage(ctx, text, DefaultSemanticThreshold)
		if err != nil {
			v.logger.Warn("PII safety check failed, refusing to store", map[string]interface{}{
				"user_id": userID, "error": err.Error(),
			})
			return core.NewFrameworkError("memory.AddMemory", "memory", err).WithID(userID)
		}
		if !safe {
			redacted, rerr := v.redactor.Redact(ctx, text, PIIRedactionMethod)
			if rerr != nil {
				return core.NewFrameworkError("memory.AddMemory", "memory", rerr).WithID(userID)
			}
			text = redacted
			piiRedacted = true
		}
	}

	embedding, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return core.NewFrameworkError("memory.AddMemory", "memory", err).WithID(userID)
	}

	mem := SemanticMemory{
		UserID:      userID,
		Content:     text,
		Type:        memType,
		Metadata:    metadata,
		Timestamp:   time.Now().UnixMilli(),
		PIIRedacted: piiRedacted,
	}
	_, err = v.store.Upsert(ctx, mem, embedding)
	return err
}

// SearchMemories returns entries scoring at or above threshold, highest
// first, capped at topK.
func (v *VectorSemanticStore) SearchMemories(ctx context.Context, userID, query string, topK int, threshold float64) ([]SemanticMemory, error) {
	if topK <= 0 {
		topK = DefaultSemanticTopK
	}
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}

	embedding, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, core.NewFrameworkError("memory.SearchMemories", "memory", err).WithID(userID)
	}

	matches, err := v.store.Search(ctx, userID, embedding, topK)
	if err != nil {
		return nil, err
	}

	out := make([]SemanticMemory, 0, len(matches))
	for _, m := range matches {
		if m.Score < threshold {
			continue
		}
		out = append(out, SemanticMemory{
			ID:       m.ID,
			UserID:   userID,
			Content:  m.Content,
			Metadata: m.Metadata,
			Score:    m.Score,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// DeleteUserMemories removes every stored memory for a user (GDPR
// erasure request).
func (v *VectorSemanticStore) DeleteUserMemories(ctx context.Context, userID string) error {
	return v.store.DeleteByUser(ctx, userID)
}

// InMemorySemanticStore is a process-local SemanticStore fake backed by
// brute-force cosine similarity; used for tests and deployments without
// a real vector database.
type InMemorySemanticStore struct {
	mu       sync.Mutex
	byUser   map[string][]inMemoryEntry
	embedder Embedder
	redactor PIIRedactor
}

type inMemoryEntry struct {
	mem       SemanticMemory
	embedding []float32
}

// NewInMemorySemanticStore constructs an InMemorySemanticStore. embedder
// must be non-nil; redactor may be nil.
func NewInMemorySemanticStore(embedder Embedder, redactor PIIRedactor) *InMemorySemanticStore {
	return &InMemorySemanticStore{
		byUser:   make(map[string][]inMemoryEntry),
		embedder: embedder,
		redactor: redactor,
	}
}

func (m *InMemorySemanticStore) AddMemory(ctx context.Context, userID, text, memType string, metadata map[string]interface{}) error {
	piiRedacted := false
	if m.redactor != nil {
		safe, err := m.redactor.IsTextSafeForStorage(ctx, text, DefaultSemanticThreshold)
		if err != nil {
			return err
		}
		if !safe {
			redacted, err := m.redactor.Redact(ctx, text, PIIRedactionMethod)
			if err != nil {
				return err
			}
			text = redacted
			piiRedacted = true
		}
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[userID] = append(m.byUser[userID], inMemoryEntry{
		mem: SemanticMemory{
			UserID: userID, Content: text, Type: memType, Metadata: metadata,
			Timestamp: time.Now().UnixMilli(), PIIRedacted: piiRedacted,
		},
		embedding: embedding,
	})
	return nil
}

func (m *InMemorySemanticStore) SearchMemories(ctx context.Context, userID, query string, topK int, threshold float64) ([]SemanticMemory, error) {
	if topK <= 0 {
		topK = DefaultSemanticTopK
	}
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}

	queryEmbedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	entries := append([]inMemoryEntry(nil), m.byUser[userID]...)
	m.mu.Unlock()

	scored := make([]SemanticMemory, 0, len(entries))
	for _, e := range entries {
		score := cosineSimilarity(queryEmbedding, e.embedding)
		if score < threshold {
			continue
		}
		mem := e.mem
		mem.Score = score
		scored = append(scored, mem)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (m *InMemorySemanticStore) DeleteUserMemories(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
