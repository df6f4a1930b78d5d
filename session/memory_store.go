package session

import (
	"context"
	"sync"
	"time"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/fsm"
)

// InMemorySessionStore is a process-local SessionStore for tests and
// the in-memory deployment profile.
type InMemorySessionStore struct {
	mu       sync.Mutex
	contexts map[string]*fsm.SessionContext
	updated  map[string]time.Time
}

// NewInMemorySessionStore constructs an empty InMemorySessionStore.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		contexts: make(map[string]*fsm.SessionContext),
		updated:  make(map[string]time.Time),
	}
}

// Save stores a snapshot of sessionCtx so later mutation of the
// caller's pointer does not retroactively change the persisted record.
func (s *InMemorySessionStore) Save(ctx context.Context, sessionCtx *fsm.SessionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[sessionCtx.SessionID] = sessionCtx.Clone()
	s.updated[sessionCtx.SessionID] = time.Now()
	return nil
}

// Load returns core.ErrSessionNotFound when absent.
func (s *InMemorySessionStore) Load(ctx context.Context, sessionID string) (*fsm.SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.contexts[sessionID]
	if !ok {
		return nil, core.NewFrameworkError("session.Load", "session", core.ErrSessionNotFound).WithID(sessionID)
	}
	return cp.Clone(), nil
}

// Delete removes a persisted session context.
func (s *InMemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, sessionID)
	delete(s.updated, sessionID)
	return nil
}

// Cleanup removes entries last saved more than maxAge ago, returning
// the count removed.
func (s *InMemorySessionStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, ts := range s.updated {
		if ts.Before(cutoff) {
			delete(s.contexts, id)
			delete(s.updated, id)
			removed++
		}
	}
	return removed, nil
}
