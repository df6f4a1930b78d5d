package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/fsm"
)

// DefaultSessionTTL is the durable-store TTL for a persisted session
// context. It reuses the summary store's 24h window so a session
// surviving one idle day can still be recovered.
const DefaultSessionTTL = 24 * time.Hour

// RedisSessionStore is the Redis-backed SessionStore:
// JSON-marshal-and-SET with TTL.
type RedisSessionStore struct {
	client *core.RedisClient
	ttl    time.Duration
	logger core.Logger
}

// NewRedisSessionStore constructs a RedisSessionStore against an
// already-connected core.RedisClient (conventionally opened on
// core.RedisDBSessions).
func NewRedisSessionStore(client *core.RedisClient, logger core.Logger) *RedisSessionStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisSessionStore{client: client, ttl: DefaultSessionTTL, logger: logger}
}

// WithTTL overrides the default persisted-context TTL.
func (s *RedisSessionStore) WithTTL(ttl time.Duration) *RedisSessionStore {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func sessionKey(sessionID string) string { return "session:" + sessionID }

// Save persists the JSON projection of sessionCtx. StepLog, pipeline
// execution history, and performance metrics all round-trip because
// fsm.SessionContext is already the on-wire shape.
func (s *RedisSessionStore) Save(ctx context.Context, sessionCtx *fsm.SessionContext) error {
	data, err := json.Marshal(sessionCtx)
	if err != nil {
		return core.NewFrameworkError("session.Save", "session", err).WithID(sessionCtx.SessionID)
	}
	return s.client.Set(ctx, sessionKey(sessionCtx.SessionID), data, s.ttl)
}

// Load retrieves and deserializes a session context. Returns
// core.ErrSessionNotFound when absent.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*fsm.SessionContext, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if err == redis.Nil {
			return nil, core.NewFrameworkError("session.Load", "session", core.ErrSessionNotFound).WithID(sessionID)
		}
		return nil, core.NewFrameworkError("session.Load", "session", err).WithID(sessionID)
	}

	var sessionCtx fsm.SessionContext
	if err := json.Unmarshal([]byte(raw), &sessionCtx); err != nil {
		return nil, core.NewFrameworkError("session.Load", "session", core.ErrSessionCorrupted).WithID(sessionID)
	}
	return &sessionCtx, nil
}

// Delete removes a persisted session context.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID))
}

// Cleanup is a no-op for Redis: TTL eviction already bounds entry
// lifetime. It exists to satisfy SessionStore uniformly with
// InMemorySessionStore.
func (s *RedisSessionStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}
