package memory

import (
	"context"
	"strings"
	"testing"
	"time"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, r := range text {
		v[i%8] += float32(r % 7)
	}
	return v, nil
}

type stubSummarizer struct {
	fail bool
	text string
}

func (s stubSummarizer) Summarize(ctx context.Context, messages []string) (string, error) {
	if s.fail {
		return "", context.DeadlineExceeded
	}
	if s.text != "" {
		return s.text, nil
	}
	return "summary of " + strings.Join(messages, ","), nil
}

func newTestManager(summarizer Summarizer) *Manager {
	return NewManager(NewInMemoryBufferStore(), NewInMemorySummaryStore(), nil, summarizer, nil)
}

func TestManagerAddMessageWithinBounds(t *testing.T) {
	m := newTestManager(stubSummarizer{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := m.AddMessage(ctx, "s1", Message{Role: "user", Content: "hi", Timestamp: time.Now()}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	msgs, err := m.buffer.GetMessages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
}

func TestManagerBufferOverflowTrimsOldest(t *testing.T) {
	m := newTestManager(stubSummarizer{})
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		_ = m.AddMessage(ctx, "s1", Message{Role: "user", Content: "x", Timestamp: time.Now()})
	}

	msgs, _ := m.buffer.GetMessages(ctx, "s1", 0)
	if len(msgs) > DefaultBufferMaxMessages {
		t.Fatalf("expected buffer capped at %d, got %d", DefaultBufferMaxMessages, len(msgs))
	}
}

func TestManagerSummarizationTrigger(t *testing.T) {
	m := newTestManager(stubSummarizer{text: "consolidated"})
	m.SetSessionConfig("s1", 100) // low threshold so a handful of messages trip it
	ctx := context.Background()

	longMsg := strings.Repeat("word ", 20) // ~100 chars -> ~25 tokens
	for i := 0; i < 12; i++ {
		if err := m.AddMessage(ctx, "s1", Message{Role: "user", Content: longMsg, Timestamp: time.Now()}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	current, err := m.summary.CurrentSummary(ctx, "s1")
	if err != nil {
		t.Fatalf("CurrentSummary: %v", err)
	}
	if current != "consolidated" {
		t.Fatalf("expected summarization to have fired, got %q", current)
	}

	info, _ := m.buffer.Info(ctx, "s1")
	if info.MessageCount >= 12 {
		t.Fatalf("expected oldest messages popped after trigger, count=%d", info.MessageCount)
	}
}

func TestManagerSummarizationFallbackOnFailure(t *testing.T) {
	m := newTestManager(stubSummarizer{fail: true})
	m.SetSessionConfig("s1", 50)
	ctx := context.Background()

	longMsg := strings.Repeat("word ", 20)
	for i := 0; i < 12; i++ {
		_ = m.AddMessage(ctx, "s1", Message{Role: "user", Content: longMsg, Timestamp: time.Now()})
	}

	current, _ := m.summary.CurrentSummary(ctx, "s1")
	if current == "" {
		t.Fatalf("expected fallback truncation summary, got empty")
	}
	if len(current) > 210 {
		t.Fatalf("expected fallback to be bounded near 200 chars, got %d", len(current))
	}
}

func TestManagerEnhancedContextAssembly(t *testing.T) {
	m := newTestManager(stubSummarizer{})
	ctx := context.Background()
	_ = m.AddMessage(ctx, "s1", Message{Role: "user", Content: "hello", Timestamp: time.Now()})

	ec, err := m.EnhancedContext(ctx, "s1", "user-1", "")
	if err != nil {
		t.Fatalf("EnhancedContext: %v", err)
	}
	if ec.MessageCount != 1 {
		t.Fatalf("expected 1 message, got %d", ec.MessageCount)
	}
	if len(ec.SemanticMemories) != 0 {
		t.Fatalf("expected no semantic memories without a semantic store")
	}
}

func TestManagerClearSession(t *testing.T) {
	m := newTestManager(stubSummarizer{})
	ctx := context.Background()
	_ = m.AddMessage(ctx, "s1", Message{Role: "user", Content: "hello", Timestamp: time.Now()})

	if err := m.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}

	msgs, _ := m.buffer.GetMessages(ctx, "s1", 0)
	if len(msgs) != 0 {
		t.Fatalf("expected buffer cleared, got %d messages", len(msgs))
	}
}
