package memory

import (
	"context"
	"testing"
)

type fakeRedactor struct {
	unsafe map[string]bool
}

func (f fakeRedactor) Redact(ctx context.Context, text, method string) (string, error) {
	return "[REDACTED]", nil
}

func (f fakeRedactor) DetectPII(ctx context.Context, text string) ([]string, error) {
	if f.unsafe[text] {
		return []string{"email"}, nil
	}
	return nil, nil
}

func (f fakeRedactor) IsTextSafeForStorage(ctx context.Context, text string, threshold float64) (bool, error) {
	return !f.unsafe[text], nil
}

func TestInMemorySemanticStoreSearchAboveThreshold(t *testing.T) {
	store := NewInMemorySemanticStore(stubEmbedder{}, nil)
	ctx := context.Background()

	if err := store.AddMemory(ctx, "user-1", "likes quiet laptops for travel", "preference", nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	results, err := store.SearchMemories(ctx, "user-1", "likes quiet laptops for travel", 3, 0.99)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected an exact-text match to score above threshold")
	}
}

func TestInMemorySemanticStoreRedactsUnsafeText(t *testing.T) {
	redactor := fakeRedactor{unsafe: map[string]bool{"contact me at a@b.com": true}}
	store := NewInMemorySemanticStore(stubEmbedder{}, redactor)
	ctx := context.Background()

	if err := store.AddMemory(ctx, "user-1", "contact me at a@b.com", "note", nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	entries := store.byUser["user-1"]
	if len(entries) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(entries))
	}
	if !entries[0].mem.PIIRedacted {
		t.Fatalf("expected entry flagged pii_redacted")
	}
	if entries[0].mem.Content != "[REDACTED]" {
		t.Fatalf("expected redacted content to be stored, got %q", entries[0].mem.Content)
	}
}

func TestInMemorySemanticStoreDeleteUser(t *testing.T) {
	store := NewInMemorySemanticStore(stubEmbedder{}, nil)
	ctx := context.Background()
	_ = store.AddMemory(ctx, "user-1", "some preference text", "preference", nil)

	if err := store.DeleteUserMemories(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUserMemories: %v", err)
	}
	if len(store.byUser["user-1"]) != 0 {
		t.Fatalf("expected user memories deleted")
	}
}
