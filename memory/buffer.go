package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/contractengine/core"
)

const (
	// DefaultBufferMaxMessages bounds how many messages the buffer keeps.
	DefaultBufferMaxMessages = 30
	// DefaultBufferMaxTokens bounds total buffer token estimate.
	DefaultBufferMaxTokens = 4000
	// DefaultBufferTTL is the idle TTL applied to buffer keys.
	DefaultBufferTTL = 6 * time.Hour
)

// RedisBufferStore is the Redis-backed BufferStore. Keyspace:
// "buffer:<session_id>" (ordered list of serialized MessageEnvelopes)
// and "buffer_meta:<session_id>" (hash of last_updated/message_count),
// both TTL 6h.
type RedisBufferStore struct {
	client      *core.RedisClient
	breaker     resilienceBreaker
	maxMessages int
	maxTokens   int
	ttl         time.Duration
	logger      core.Logger
}

// resilienceBreaker is the minimal surface RedisBufferStore needs from a
// circuit breaker, so this package does not import the resilience
// package directly and any type with these three methods can guard it.
type resilienceBreaker interface {
	CanExecute() bool
	RecordSuccess()
	RecordFailure()
}

// NewRedisBufferStore constructs a RedisBufferStore. breaker may be nil
// (no circuit protection, e.g. in tests).
func NewRedisBufferStore(client *core.RedisClient, breaker resilienceBreaker, logger core.Logger) *RedisBufferStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisBufferStore{
		client:      client,
		breaker:     breaker,
		maxMessages: DefaultBufferMaxMessages,
		maxTokens:   DefaultBufferMaxTokens,
		ttl:         DefaultBufferTTL,
		logger:      logger,
	}
}

// WithLimits overrides the default message/token bounds and TTL.
func (b *RedisBufferStore) WithLimits(maxMessages, maxTokens int, ttl time.Duration) *RedisBufferStore {
	if maxMessages > 0 {
		b.maxMessages = maxMessages
	}
	if maxTokens > 0 {
		b.maxTokens = maxTokens
	}
	if ttl > 0 {
		b.ttl = ttl
	}
	return b
}

func (b *RedisBufferStore) guarded(fn func() error) error {
	if b.breaker == nil {
		return fn()
	}
	if !b.breaker.CanExecute() {
		return fmt.Errorf("buffer store: %w", core.ErrCircuitBreakerOpen)
	}
	err := fn()
	if err != nil {
		b.breaker.RecordFailure()
		return err
	}
	b.breaker.RecordSuccess()
	return nil
}

func bufferKey(sessionID string) string     { return "buffer:" + sessionID }
func bufferMetaKey(sessionID string) string { return "buffer_meta:" + sessionID }

// AddMessage appends msg then enforces the two overflow policies in
// order: trim oldest until len <= maxMessages, then trim oldest until
// total estimated tokens <= maxTokens.
func (b *RedisBufferStore) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	return b.guarded(func() error {
		encoded, err := EncodeMessage(msg)
		if err != nil {
			return err
		}
		key := bufferKey(sessionID)
		if err := b.client.RPush(ctx, key, encoded); err != nil {
			return err
		}
		if err := b.enforceOverflow(ctx, sessionID); err != nil {
			return err
		}
		if err := b.client.Expire(ctx, key, b.ttl); err != nil {
			return err
		}

		count, _ := b.client.LLen(ctx, key)
		if err := b.client.HSet(ctx, bufferMetaKey(sessionID),
			"last_updated", time.Now().UTC().Format(time.RFC3339Nano),
			"message_count", count,
		); err != nil {
			return err
		}
		return b.client.Expire(ctx, bufferMetaKey(sessionID), b.ttl)
	})
}

func (b *RedisBufferStore) enforceOverflow(ctx context.Context, sessionID string) error {
	key := bufferKey(sessionID)

	length, err := b.client.LLen(ctx, key)
	if err != nil {
		return err
	}
	if length > int64(b.maxMessages) {
		excess := length - int64(b.maxMessages)
		if err := b.client.LTrim(ctx, key, excess, -1); err != nil {
			return err
		}
	}

	for {
		raw, err := b.client.LRange(ctx, key, 0, -1)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		total := 0
		for _, r := range raw {
			m, decErr := DecodeMessage(r)
			if decErr != nil {
				continue
			}
			total += EstimateTokens(m.Content)
		}
		if total <= b.maxTokens || len(raw) <= 1 {
			return nil
		}
		if err := b.client.LTrim(ctx, key, 1, -1); err != nil {
			return err
		}
	}
}

// GetMessages returns the most recent `limit` messages (0 = all), oldest
// first.
func (b *RedisBufferStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var out []Message
	err := b.guarded(func() error {
		raw, err := b.client.LRange(ctx, bufferKey(sessionID), 0, -1)
		if err != nil {
			if err == redis.Nil {
				return nil
			}
			return err
		}
		msgs := make([]Message, 0, len(raw))
		for _, r := range raw {
			m, decErr := DecodeMessage(r)
			if decErr != nil {
				continue
			}
			msgs = append(msgs, m)
		}
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		out = msgs
		return nil
	})
	return out, err
}

// PopOldest removes and returns up to n of the oldest messages.
func (b *RedisBufferStore) PopOldest(ctx context.Context, sessionID string, n int) ([]Message, error) {
	var popped []Message
	err := b.guarded(func() error {
		key := bufferKey(sessionID)
		for i := 0; i < n; i++ {
			raw, err := b.client.LPop(ctx, key)
			if err != nil {
				if err == redis.Nil {
					break
				}
				return err
			}
			m, decErr := DecodeMessage(raw)
			if decErr != nil {
				continue
			}
			popped = append(popped, m)
		}
		count, _ := b.client.LLen(ctx, key)
		return b.client.HSet(ctx, bufferMetaKey(sessionID), "message_count", count)
	})
	return popped, err
}

// Clear deletes a session's buffer entirely.
func (b *RedisBufferStore) Clear(ctx context.Context, sessionID string) error {
	return b.guarded(func() error {
		return b.client.Del(ctx, bufferKey(sessionID), bufferMetaKey(sessionID))
	})
}

// Info reports buffer metadata: message count, total estimated tokens,
// TTL remaining, and last-updated timestamp.
func (b *RedisBufferStore) Info(ctx context.Context, sessionID string) (BufferInfo, error) {
	var info BufferInfo
	err := b.guarded(func() error {
		raw, err := b.client.LRange(ctx, bufferKey(sessionID), 0, -1)
		if err != nil && err != redis.Nil {
			return err
		}
		total := 0
		for _, r := range raw {
			m, decErr := DecodeMessage(r)
			if decErr != nil {
				continue
			}
			total += EstimateTokens(m.Content)
		}
		info.MessageCount = len(raw)
		info.TotalTokens = total

		if ttl, err := b.client.TTL(ctx, bufferKey(sessionID)); err == nil && ttl > 0 {
			info.TTLRemaining = ttl
		}

		meta, err := b.client.HGetAll(ctx, bufferMetaKey(sessionID))
		if err == nil {
			if ts, ok := meta["last_updated"]; ok {
				if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
					info.LastUpdated = parsed
				}
			}
		}
		return nil
	})
	return info, err
}

// InMemoryBufferStore is a process-local BufferStore fake for tests and
// the in-memory SessionStore deployment profile.
type InMemoryBufferStore struct {
	mu          sync.Mutex
	sessions    map[string][]Message
	updated     map[string]time.Time
	maxMessages int
	maxTokens   int
	ttl         time.Duration
}

// NewInMemoryBufferStore constructs an InMemoryBufferStore with spec
// default limits.
func NewInMemoryBufferStore() *InMemoryBufferStore {
	return &InMemoryBufferStore{
		sessions:    make(map[string][]Message),
		updated:     make(map[string]time.Time),
		maxMessages: DefaultBufferMaxMessages,
		maxTokens:   DefaultBufferMaxTokens,
		ttl:         DefaultBufferTTL,
	}
}

// WithLimits overrides the default bounds.
func (b *InMemoryBufferStore) WithLimits(maxMessages, maxTokens int, ttl time.Duration) *InMemoryBufferStore {
	if maxMessages > 0 {
		b.maxMessages = maxMessages
	}
	if maxTokens > 0 {
		b.maxTokens = maxTokens
	}
	if ttl > 0 {
		b.ttl = ttl
	}
	return b
}

func (b *InMemoryBufferStore) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := append(b.sessions[sessionID], msg)
	msgs = enforceLimits(msgs, b.maxMessages, b.maxTokens)
	b.sessions[sessionID] = msgs
	b.updated[sessionID] = time.Now()
	return nil
}

func enforceLimits(msgs []Message, maxMessages, maxTokens int) []Message {
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	for {
		total := 0
		for _, m := range msgs {
			total += EstimateTokens(m.Content)
		}
		if total <= maxTokens || len(msgs) <= 1 {
			break
		}
		msgs = msgs[1:]
	}
	return msgs
}

func (b *InMemoryBufferStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := append([]Message(nil), b.sessions[sessionID]...)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (b *InMemoryBufferStore) PopOldest(ctx context.Context, sessionID string, n int) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.sessions[sessionID]
	if n > len(msgs) {
		n = len(msgs)
	}
	popped := append([]Message(nil), msgs[:n]...)
	b.sessions[sessionID] = msgs[n:]
	return popped, nil
}

func (b *InMemoryBufferStore) Clear(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
	delete(b.updated, sessionID)
	return nil
}

func (b *InMemoryBufferStore) Info(ctx context.Context, sessionID string) (BufferInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.sessions[sessionID]
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}

	info := BufferInfo{
		MessageCount: len(msgs),
		TotalTokens:  total,
		LastUpdated:  b.updated[sessionID],
	}
	if updated, ok := b.updated[sessionID]; ok {
		remaining := b.ttl - time.Since(updated)
		if remaining > 0 {
			info.TTLRemaining = remaining
		}
	}
	return info, nil
}
