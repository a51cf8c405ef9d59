package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dmsync/internal/infrastructure/cache/port"
	"dmsync/pkg/logger"
)

// Kind namespaces cached projections. Each kind carries its own max age.
type Kind string

const (
	KindMessages      Kind = "messages"      // per-conversation message list
	KindConversations Kind = "conversations" // per-user conversation list
	KindProfile       Kind = "profile"       // per-user profile
)

// SchemaVersion tags every entry. A mismatch on read is a miss, never an
// error, so stale layouts age out silently after a deploy.
const SchemaVersion = 1

// Entry is the stored envelope around a cached value.
type Entry struct {
	Value         json.RawMessage `json:"value"`
	WrittenAt     time.Time       `json:"written_at"`
	SchemaVersion int             `json:"schema_version"`
}

// Store is a disposable, regenerable projection over a port.KV. It never owns
// canonical state: every failure path degrades to a cache miss so callers can
// always proceed as though the cache were empty.
type Store struct {
	kv  port.KV
	now func() time.Time

	messageMaxAge time.Duration
	listMaxAge    time.Duration
}

func NewStore(kv port.KV) *Store {
	return NewStoreWithMaxAges(kv, 0, 0)
}

// NewStoreWithMaxAges overrides the per-kind freshness windows. Zero or
// negative values fall back to the defaults (5m for messages, 10m for
// conversation lists).
func NewStoreWithMaxAges(kv port.KV, messageMaxAge, listMaxAge time.Duration) *Store {
	if messageMaxAge <= 0 {
		messageMaxAge = 5 * time.Minute
	}
	if listMaxAge <= 0 {
		listMaxAge = 10 * time.Minute
	}
	return &Store{kv: kv, now: time.Now, messageMaxAge: messageMaxAge, listMaxAge: listMaxAge}
}

func (s *Store) maxAge(kind Kind) time.Duration {
	switch kind {
	case KindMessages:
		return s.messageMaxAge
	case KindConversations:
		return s.listMaxAge
	default:
		// Profiles are refreshed opportunistically, not expired.
		return 0
	}
}

func key(kind Kind, scopeID string) string {
	return fmt.Sprintf("dmsync:%s:%s", kind, scopeID)
}

// Get reads the projection for (kind, scopeID) into out. It returns false on
// any miss: absent key, schema mismatch, expired entry, or a read/decode
// failure of any sort.
func (s *Store) Get(ctx context.Context, kind Kind, scopeID string, out interface{}) bool {
	raw, err := s.kv.ReadKey(ctx, key(kind, scopeID))
	if err != nil {
		if err != port.ErrMiss {
			logger.Debug("cache: read %s/%s failed: %v", kind, scopeID, err)
		}
		return false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.Debug("cache: decode %s/%s failed: %v", kind, scopeID, err)
		return false
	}
	if entry.SchemaVersion != SchemaVersion {
		return false
	}
	if age := s.maxAge(kind); age > 0 && s.now().Sub(entry.WrittenAt) > age {
		return false
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		logger.Debug("cache: decode value %s/%s failed: %v", kind, scopeID, err)
		return false
	}
	return true
}

// Put writes the projection for (kind, scopeID). Serialization or store
// failures are swallowed; caching is strictly an optimization.
func (s *Store) Put(ctx context.Context, kind Kind, scopeID string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Debug("cache: encode %s/%s failed: %v", kind, scopeID, err)
		return
	}
	entry := Entry{Value: raw, WrittenAt: s.now(), SchemaVersion: SchemaVersion}
	encoded, err := json.Marshal(entry)
	if err != nil {
		logger.Debug("cache: encode entry %s/%s failed: %v", kind, scopeID, err)
		return
	}
	// The KV TTL doubles the logical max age; the WrittenAt gate is the one
	// that decides staleness.
	var ttl time.Duration
	if age := s.maxAge(kind); age > 0 {
		ttl = 2 * age
	}
	if err := s.kv.WriteKey(ctx, key(kind, scopeID), string(encoded), ttl); err != nil {
		logger.Debug("cache: write %s/%s failed: %v", kind, scopeID, err)
	}
}

// Invalidate drops the projection for (kind, scopeID).
func (s *Store) Invalidate(ctx context.Context, kind Kind, scopeID string) {
	if err := s.kv.RemoveKey(ctx, key(kind, scopeID)); err != nil {
		logger.Debug("cache: invalidate %s/%s failed: %v", kind, scopeID, err)
	}
}
