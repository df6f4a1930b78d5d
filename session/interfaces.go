// Package session implements the two-level session persistence layer
// : an in-process cache holding the latest enhanced
// context serialization per session, backed by a durable SessionStore
// that persists a dict projection of the SessionContext plus a
// pipeline-state cache for replay.
package session

import (
	"context"
	"time"

	"github.com/itsneelabh/contractengine/fsm"
)

// SessionStore is the durable persistence interface for a
// fsm.SessionContext: the durable tier of the two-level cache.
type SessionStore interface {
	Save(ctx context.Context, sessionCtx *fsm.SessionContext) error
	Load(ctx context.Context, sessionID string) (*fsm.SessionContext, error)
	Delete(ctx context.Context, sessionID string) error
	// Cleanup removes entries whose UpdatedAt is older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// PipelineStateEntry is one cached pipeline invocation for replay,
// carrying the raw result and operation-mode tag alongside the summary
// recorded on SessionContext.PipelineExecutions.
type PipelineStateEntry struct {
	PipelineName  string         `json:"pipeline_name"`
	Result        map[string]any `json:"result"`
	OperationMode string         `json:"operation_mode"`
	Timestamp     time.Time      `json:"timestamp"`
}

// PipelineMetadata is the side-channel data SaveSessionContext records
// into the pipeline-state cache alongside the context write, so each
// pipeline invocation is recorded both on the context and in the side
// cache for replay.
type PipelineMetadata struct {
	PipelineName  string
	Result        map[string]any
	OperationMode string
}
