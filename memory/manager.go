package memory

import (
	"context"
	"sync"
	"time"

	"github.com/itsneelabh/contractengine/core"
)

const (
	// DefaultSummaryTriggerTokens is the buffer token count at which
	// AddMessage pops the oldest batch into the summarizer.
	DefaultSummaryTriggerTokens = 3000
	// summarizationBatchSize is how many of the oldest messages get
	// folded into one summary per trigger.
	summarizationBatchSize = 10
	// minBufferForSummarization is the floor below which a trigger never
	// fires even if token count is high (guards against a single huge
	// message causing a one-message "summary").
	minBufferForSummarization = 10
)

// sessionMemoryConfig is a per-session override of the manager-wide
// summarization trigger.
type sessionMemoryConfig struct {
	summaryTriggerTokens int
}

// Manager coordinates the three memory tiers and the buffer-to-summary
// consolidation trigger. It holds no session state of its
// own beyond the per-session trigger override; all data lives in the
// injected stores.
type Manager struct {
	buffer     BufferStore
	summary    SummaryStore
	semantic   SemanticStore
	summarizer Summarizer
	logger     core.Logger

	defaultTriggerTokens int

	mu             sync.Mutex
	sessionConfigs map[string]sessionMemoryConfig
}

// NewManager constructs a Manager. semantic may be nil if the semantic
// tier is disabled (MemoryConfig.SemanticEnabled=false).
func NewManager(buffer BufferStore, summary SummaryStore, semantic SemanticStore, summarizer Summarizer, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		buffer:               buffer,
		summary:              summary,
		semantic:             semantic,
		summarizer:           summarizer,
		logger:               logger,
		defaultTriggerTokens: DefaultSummaryTriggerTokens,
		sessionConfigs:       make(map[string]sessionMemoryConfig),
	}
}

// SetSessionConfig overrides summaryTriggerTokens for one session,
// falling back to the manager-wide default when triggerTokens <= 0.
func (m *Manager) SetSessionConfig(sessionID string, triggerTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionConfigs[sessionID] = sessionMemoryConfig{summaryTriggerTokens: triggerTokens}
}

func (m *Manager) triggerTokensFor(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.sessionConfigs[sessionID]; ok && cfg.summaryTriggerTokens > 0 {
		return cfg.summaryTriggerTokens
	}
	return m.defaultTriggerTokens
}

// AddMessage appends msg to the buffer, then checks the summarization
// trigger: if the buffer's total estimated tokens have crossed the
// session's threshold and it holds at least minBufferForSummarization
// messages, the oldest batch is popped, summarized, and the result is
// appended to the summary store.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	if err := m.buffer.AddMessage(ctx, sessionID, msg); err != nil {
		return err
	}

	info, err := m.buffer.Info(ctx, sessionID)
	if err != nil {
		m.logger.Warn("buffer info lookup failed after add", map[string]interface{}{
			"session_id": sessionID, "error": err.Error(),
		})
		return nil
	}

	if info.TotalTokens < m.triggerTokensFor(sessionID) || info.MessageCount < minBufferForSummarization {
		return nil
	}

	return m.triggerSummarization(ctx, sessionID)
}

func (m *Manager) triggerSummarization(ctx context.Context, sessionID string) error {
	popped, err := m.buffer.PopOldest(ctx, sessionID, summarizationBatchSize)
	if err != nil {
		return err
	}
	if len(popped) == 0 {
		return nil
	}

	texts := make([]string, 0, len(popped))
	for _, msg := range popped {
		texts = append(texts, msg.Content)
	}

	text, err := m.summarizer.Summarize(ctx, texts)
	if err != nil {
		m.logger.Warn("summarizer failed, using truncation fallback", map[string]interface{}{
			"session_id": sessionID, "error": err.Error(),
		})
		text = truncationFallback(texts)
	}

	return m.summary.AddSummary(ctx, sessionID, Summary{
		Text:      text,
		Timestamp: time.Now(),
	})
}

// truncationFallback degrades to the first 200 characters of the
// concatenated messages.
func truncationFallback(texts []string) string {
	joined := ""
	for i, t := range texts {
		if i > 0 {
			joined += " "
		}
		joined += t
	}
	if len(joined) > 200 {
		return joined[:200] + "..."
	}
	return joined
}

// EnhancedContext assembles the upstream-facing view across all
// configured tiers; every read is a single keyed lookup per tier.
func (m *Manager) EnhancedContext(ctx context.Context, sessionID, userID, query string) (EnhancedContext, error) {
	messages, err := m.buffer.GetMessages(ctx, sessionID, 0)
	if err != nil {
		return EnhancedContext{}, err
	}
	currentSummary, err := m.summary.CurrentSummary(ctx, sessionID)
	if err != nil {
		return EnhancedContext{}, err
	}
	info, err := m.buffer.Info(ctx, sessionID)
	if err != nil {
		return EnhancedContext{}, err
	}

	out := EnhancedContext{
		BufferMessages: messages,
		CurrentSummary: currentSummary,
		BufferInfo:     info,
		TotalTokens:    info.TotalTokens,
		MessageCount:   info.MessageCount,
	}

	if m.semantic != nil && query != "" {
		memories, err := m.semantic.SearchMemories(ctx, userID, query, DefaultSemanticTopK, DefaultSemanticThreshold)
		if err != nil {
			m.logger.Warn("semantic search failed, omitting from enhanced context", map[string]interface{}{
				"session_id": sessionID, "error": err.Error(),
			})
		} else {
			out.SemanticMemories = memories
		}
	}

	return out, nil
}

// ClearSession clears the buffer and summary tiers for a session (does
// not touch the semantic tier, which is keyed by user id and meant to
// survive the session).
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	if err := m.buffer.Clear(ctx, sessionID); err != nil {
		return err
	}
	return m.summary.Clear(ctx, sessionID)
}
