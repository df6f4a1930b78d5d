package session

import (
	"context"
	"time"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/fsm"
)

// Manager is the two-level session persistence layer:
// an in-process ContextCache fronts a durable SessionStore, and every
// pipeline invocation recorded on a context is mirrored into a
// PipelineStateCache for replay.
type Manager struct {
	store         SessionStore
	contextCache  *ContextCache
	pipelineCache *PipelineStateCache
	logger        core.Logger
}

// NewManager constructs a Manager over a durable SessionStore.
func NewManager(store SessionStore, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		store:         store,
		contextCache:  NewContextCache(),
		pipelineCache: NewPipelineStateCache(),
		logger:        logger,
	}
}

// SaveSessionContext writes sessionCtx to both cache levels and, for
// every pipeline invocation named in pipelineMetadata, records a
// PipelineStateEntry in the side cache.
func (m *Manager) SaveSessionContext(ctx context.Context, sessionCtx *fsm.SessionContext, pipelineMetadata ...PipelineMetadata) error {
	m.contextCache.Put(sessionCtx)

	for _, pm := range pipelineMetadata {
		m.pipelineCache.Put(sessionCtx.SessionID, PipelineStateEntry{
			PipelineName:  pm.PipelineName,
			Result:        pm.Result,
			OperationMode: pm.OperationMode,
			Timestamp:     time.Now(),
		})
	}

	if err := m.store.Save(ctx, sessionCtx); err != nil {
		m.logger.Warn("durable session save failed", map[string]interface{}{
			"session_id": sessionCtx.SessionID, "error": err.Error(),
		})
		return err
	}
	return nil
}

// LoadContext returns the freshest known SessionContext for sessionID:
// the in-process cache if present, otherwise the durable store (which
// is then used to warm the cache). A hit reconstructs only the
// context, never a resident FSM/handler state.
func (m *Manager) LoadContext(ctx context.Context, sessionID string) (*fsm.SessionContext, error) {
	if cached, ok := m.contextCache.Get(sessionID); ok && cached != nil {
		return cached, nil
	}

	sessionCtx, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.contextCache.Put(sessionCtx)
	return sessionCtx, nil
}

// ReplayPipelineResult returns the cached raw result for a session's
// most recent invocation of pipelineName, if still within its TTL.
func (m *Manager) ReplayPipelineResult(sessionID, pipelineName string) (PipelineStateEntry, bool) {
	return m.pipelineCache.Get(sessionID, pipelineName)
}

// Forget invalidates the in-process cache entry and deletes the
// durable record, used when a contract reaches a terminal state.
func (m *Manager) Forget(ctx context.Context, sessionID string) error {
	m.contextCache.Invalidate(sessionID)
	return m.store.Delete(ctx, sessionID)
}

// Cleanup converts maxAgeHours to a duration and delegates to the
// durable store's own cleanup; the in-memory caches are not swept.
func (m *Manager) Cleanup(ctx context.Context, maxAgeHours float64) (int, error) {
	maxAge := time.Duration(maxAgeHours * float64(time.Hour))
	return m.store.Cleanup(ctx, maxAge)
}
