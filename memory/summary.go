package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/contractengine/core"
)

const (
	// DefaultSummaryHistoryDepth is the point at which the oldest 3
	// records are merged into one.
	DefaultSummaryHistoryDepth = 8
	// DefaultSummaryTTL is the fast-store TTL for summary keys.
	DefaultSummaryTTL = 24 * time.Hour
	// mergedSummaryCharLimit bounds a merged record's concatenated text.
	mergedSummaryCharLimit = 500
	// mergeBatchSize is how many of the oldest records get folded together.
	mergeBatchSize = 3
)

func summaryScalarKey(sessionID string) string { return "summary:" + sessionID }
func summaryListKey(sessionID string) string   { return "summary_list:" + sessionID }

// RedisSummaryStore is the Redis-backed SummaryStore, with a
// best-effort SQL mirror of the current consolidated summary. A mirror
// failure must not fail the user turn.
type RedisSummaryStore struct {
	client     *core.RedisClient
	mirror     SummaryMirrorStore
	redactor   PIIRedactor
	historyCap int
	ttl        time.Duration
	logger     core.Logger
}

// NewRedisSummaryStore constructs a RedisSummaryStore. mirror may be nil
// to disable the SQL mirror entirely.
func NewRedisSummaryStore(client *core.RedisClient, mirror SummaryMirrorStore, logger core.Logger) *RedisSummaryStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisSummaryStore{
		client:     client,
		mirror:     mirror,
		historyCap: DefaultSummaryHistoryDepth,
		ttl:        DefaultSummaryTTL,
		logger:     logger,
	}
}

// WithHistoryCap overrides the default merge threshold.
func (s *RedisSummaryStore) WithHistoryCap(cap int) *RedisSummaryStore {
	if cap > 0 {
		s.historyCap = cap
	}
	return s
}

// WithRedactor gates summary persistence through the PII redactor:
// a summary flagged unsafe is stored redacted, never verbatim.
func (s *RedisSummaryStore) WithRedactor(r PIIRedactor) *RedisSummaryStore {
	s.redactor = r
	return s
}

// AddSummary appends a new record, merges the oldest three once history
// exceeds historyCap, sets the current-summary scalar, and mirrors it to
// SQL on a best-effort basis. The list-append, scalar-set, and expires
// go through one MULTI/EXEC batch so a partial write never leaves the
// scalar and history disagreeing.
func (s *RedisSummaryStore) AddSummary(ctx context.Context, sessionID string, rec Summary) error {
	if s.redactor != nil {
		if safe, err := s.redactor.IsTextSafeForStorage(ctx, rec.Text, DefaultSemanticThreshold); err == nil && !safe {
			redacted, rerr := s.redactor.Redact(ctx, rec.Text, PIIRedactionMethod)
			if rerr != nil {
				return rerr
			}
			rec.Text = redacted
			if rec.Metadata == nil {
				rec.Metadata = map[string]interface{}{}
			}
			rec.Metadata["pii_redacted"] = true
		}
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner, key func(string) string) error {
		pipe.RPush(ctx, key(summaryListKey(sessionID)), string(encoded))
		pipe.Set(ctx, key(summaryScalarKey(sessionID)), rec.Text, s.ttl)
		pipe.Expire(ctx, key(summaryListKey(sessionID)), s.ttl)
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.mergeIfNeeded(ctx, sessionID); err != nil {
		s.logger.Warn("summary merge failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
	}

	if s.mirror != nil {
		if err := s.mirror.UpsertSummary(ctx, sessionID, rec.Text); err != nil {
			s.logger.Warn("SQL summary mirror write failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

func (s *RedisSummaryStore) mergeIfNeeded(ctx context.Context, sessionID string) error {
	key := summaryListKey(sessionID)
	raw, err := s.client.LRange(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	if len(raw) <= s.historyCap {
		return nil
	}

	records := make([]Summary, 0, len(raw))
	for _, r := range raw {
		var rec Summary
		if err := json.Unmarshal([]byte(r), &rec); err == nil {
			records = append(records, rec)
		}
	}
	if len(records) <= mergeBatchSize {
		return nil
	}

	merged := mergeRecords(records[:mergeBatchSize])
	rest := records[mergeBatchSize:]

	newList := append([]Summary{merged}, rest...)
	if err := s.client.Del(ctx, key); err != nil {
		return err
	}
	for _, rec := range newList {
		encoded, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := s.client.RPush(ctx, key, string(encoded)); err != nil {
			return err
		}
	}
	// The rebuild replaced the key, so the TTL has to be restored.
	return s.client.Expire(ctx, key, s.ttl)
}

func mergeRecords(records []Summary) Summary {
	text := ""
	for i, rec := range records {
		if i > 0 {
			text += " "
		}
		text += rec.Text
	}
	if len(text) > mergedSummaryCharLimit {
		text = text[:mergedSummaryCharLimit]
	}
	return Summary{
		Text:      text,
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"merged": true},
	}
}

// CurrentSummary returns the current consolidated scalar, or "" if unset.
func (s *RedisSummaryStore) CurrentSummary(ctx context.Context, sessionID string) (string, error) {
	val, err := s.client.Get(ctx, summaryScalarKey(sessionID))
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

// History returns the full ordered summary history (oldest first).
func (s *RedisSummaryStore) History(ctx context.Context, sessionID string) ([]Summary, error) {
	raw, err := s.client.LRange(ctx, summaryListKey(sessionID), 0, -1)
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Summary, 0, len(raw))
	for _, r := range raw {
		var rec Summary
		if err := json.Unmarshal([]byte(r), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Clear removes a session's summary scalar and history.
func (s *RedisSummaryStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, summaryScalarKey(sessionID), summaryListKey(sessionID))
}

// InMemorySummaryStore is a process-local SummaryStore fake.
type InMemorySummaryStore struct {
	mu         sync.Mutex
	current    map[string]string
	history    map[string][]Summary
	historyCap int
}

// NewInMemorySummaryStore constructs an InMemorySummaryStore.
func NewInMemorySummaryStore() *InMemorySummaryStore {
	return &InMemorySummaryStore{
		current:    make(map[string]string),
		history:    make(map[string][]Summary),
		historyCap: DefaultSummaryHistoryDepth,
	}
}

func (s *InMemorySummaryStore) AddSummary(ctx context.Context, sessionID string, rec Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.history[sessionID], rec)
	if len(history) > s.historyCap && len(history) > mergeBatchSize {
		merged := mergeRecords(history[:mergeBatchSize])
		history = append([]Summary{merged}, history[mergeBatchSize:]...)
	}
	s.history[sessionID] = history
	s.current[sessionID] = rec.Text
	return nil
}

func (s *InMemorySummaryStore) CurrentSummary(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[sessionID], nil
}

func (s *InMemorySummaryStore) History(ctx context.Context, sessionID string) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Summary(nil), s.history[sessionID]...), nil
}

func (s *InMemorySummaryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, sessionID)
	delete(s.history, sessionID)
	return nil
}
