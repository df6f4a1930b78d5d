package session

import (
	"time"

	"github.com/itsneelabh/contractengine/fsm"
	"github.com/itsneelabh/contractengine/pipeline"
)

// ContextCacheTTL is the in-process cache's retention for the latest
// enhanced context serialization per session.
const ContextCacheTTL = 5 * time.Minute

// PipelineStateCacheTTL bounds how long a pipeline invocation's raw
// result stays replayable from the side cache.
const PipelineStateCacheTTL = 30 * time.Minute

// ContextCache is the in-process first-level cache of
// fsm.SessionContext snapshots, fronting a durable SessionStore.
type ContextCache struct {
	cache *pipeline.TTLCache[*fsm.SessionContext]
}

// NewContextCache constructs an empty ContextCache.
func NewContextCache() *ContextCache {
	return &ContextCache{cache: pipeline.NewTTLCache[*fsm.SessionContext]()}
}

// Get returns the cached context for sessionID, if present and fresh.
func (c *ContextCache) Get(sessionID string) (*fsm.SessionContext, bool) {
	return c.cache.Get(sessionID)
}

// Put caches a snapshot of sessionCtx under its session id.
func (c *ContextCache) Put(sessionCtx *fsm.SessionContext) {
	c.cache.Set(sessionCtx.SessionID, sessionCtx.Clone(), ContextCacheTTL)
}

// Invalidate drops a session's cached snapshot, e.g. on terminal states.
func (c *ContextCache) Invalidate(sessionID string) {
	c.cache.Set(sessionID, nil, 0)
}

// PipelineStateCache is the side cache of raw pipeline results used for
// replay, keyed by "<sessionID>:<pipelineName>".
type PipelineStateCache struct {
	cache *pipeline.TTLCache[PipelineStateEntry]
}

// NewPipelineStateCache constructs an empty PipelineStateCache.
func NewPipelineStateCache() *PipelineStateCache {
	return &PipelineStateCache{cache: pipeline.NewTTLCache[PipelineStateEntry]()}
}

func pipelineStateKey(sessionID, pipelineName string) string {
	return sessionID + ":" + pipelineName
}

// Put records a pipeline invocation's raw result for replay.
func (c *PipelineStateCache) Put(sessionID string, entry PipelineStateEntry) {
	c.cache.Set(pipelineStateKey(sessionID, entry.PipelineName), entry, PipelineStateCacheTTL)
}

// Get retrieves a cached pipeline invocation, if still within its TTL.
func (c *PipelineStateCache) Get(sessionID, pipelineName string) (PipelineStateEntry, bool) {
	return c.cache.Get(pipelineStateKey(sessionID, pipelineName))
}
