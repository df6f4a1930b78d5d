// Package orchestrator implements the dispatch glue between a front-end
// turn (messages, session id) and the Contract FSM: it
// checks for a pending confirmation, then a resident FSM, and otherwise
// classifies intent to decide whether a fresh FSM should be created.
// Intent classification, and the tool/rag/chat collaborator paths, are
// out of scope for this engine and are represented here as
// typed interfaces only.
package orchestrator

import "context"

// Intent is the classification the front-end's intent extractor assigns
// to a user utterance.
type Intent string

const (
	IntentContract Intent = "contract"
	IntentTool     Intent = "tool"
	IntentRAG      Intent = "rag"
	IntentChat     Intent = "chat"
)

// IntentExtractor classifies a user utterance when no pending
// confirmation or resident FSM applies. The classifier itself lives in
// the front-end; this is only its boundary.
type IntentExtractor interface {
	Classify(ctx context.Context, sessionID, utterance string) (Intent, error)
}

// ToolHandler delegates a `tool`-intent turn to the out-of-scope tool
// execution collaborator.
type ToolHandler interface {
	HandleTool(ctx context.Context, sessionID, utterance string) (string, error)
}

// RAGHandler delegates a `rag`-intent turn to the out-of-scope RAG
// document pipeline.
type RAGHandler interface {
	HandleRAG(ctx context.Context, sessionID, utterance string) (string, error)
}

// ChatHandler delegates a `chat`-intent turn to the out-of-scope LLM
// chat collaborator.
type ChatHandler interface {
	HandleChat(ctx context.Context, sessionID, utterance string) (string, error)
}

// PendingConfirmation is a product awaiting a yes/no answer outside the
// FSM, e.g. a one-off purchase confirmation
// surfaced by a tool call rather than the contract negotiation flow.
type PendingConfirmation struct {
	SessionID   string
	ProductName string
	Payload     map[string]any
}

// PendingConfirmationStore tracks at most one PendingConfirmation per
// session.
type PendingConfirmationStore interface {
	Get(ctx context.Context, sessionID string) (*PendingConfirmation, error)
	Clear(ctx context.Context, sessionID string) error
}

// ConfirmationAnswer is the parsed interpretation of a user's reply to a
// pending confirmation.
type ConfirmationAnswer int

const (
	AnswerUnknown ConfirmationAnswer = iota
	AnswerYes
	AnswerNo
)

// ArtifactWriter emits the gzip-compressed audit artifact for a
// completed/cancelled contract under
// audit/<kind>/YYYY/MM/DD/<session_id>_HHMMSS.json.gz; the object
// store client behind it is an external collaborator.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, kind, sessionID string, payload map[string]any) error
}

// ChatHistoryStore appends user/assistant turns to the conversation
// history backing a session; backed in
// production by the memory package's BufferStore via MemoryManager, but
// kept as a narrow interface here so the orchestrator does not need the
// full memory.Manager surface.
type ChatHistoryStore interface {
	AppendUserMessage(ctx context.Context, sessionID, content string) error
	AppendAssistantMessage(ctx context.Context, sessionID, content string) error
}
