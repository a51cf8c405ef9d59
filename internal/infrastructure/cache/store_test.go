package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmsync/internal/infrastructure/cache/adapter"
	"dmsync/internal/infrastructure/cache/port"
)

type failingKV struct{}

func (f failingKV) ReadKey(ctx context.Context, key string) (string, error) {
	return "", errors.New("store unavailable")
}
func (f failingKV) WriteKey(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("store full")
}
func (f failingKV) RemoveKey(ctx context.Context, key string) error {
	return errors.New("store unavailable")
}
func (f failingKV) Close() error { return nil }

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(adapter.NewMemoryKV())

	store.Put(ctx, KindMessages, "conv-1", []string{"a", "b", "c"})

	var out []string
	require.True(t, store.Get(ctx, KindMessages, "conv-1", &out))
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestStoreMissOnAbsentKey(t *testing.T) {
	store := NewStore(adapter.NewMemoryKV())

	var out []string
	assert.False(t, store.Get(context.Background(), KindMessages, "nope", &out))
}

func TestStoreExpiredEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewStore(adapter.NewMemoryKV())

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, KindMessages, "conv-1", []string{"stale"})

	// Message lists expire after 5 minutes; 6 minutes later is a miss.
	store.now = func() time.Time { return now.Add(6 * time.Minute) }
	var out []string
	assert.False(t, store.Get(ctx, KindMessages, "conv-1", &out))

	// Conversation lists live longer.
	store.now = func() time.Time { return now }
	store.Put(ctx, KindConversations, "user-1", []string{"c1"})
	store.now = func() time.Time { return now.Add(6 * time.Minute) }
	assert.True(t, store.Get(ctx, KindConversations, "user-1", &out))
	store.now = func() time.Time { return now.Add(11 * time.Minute) }
	assert.False(t, store.Get(ctx, KindConversations, "user-1", &out))
}

func TestStoreConfiguredMaxAges(t *testing.T) {
	ctx := context.Background()
	store := NewStoreWithMaxAges(adapter.NewMemoryKV(), time.Minute, 2*time.Minute)

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, KindMessages, "conv-1", []string{"a"})
	store.Put(ctx, KindConversations, "user-1", []string{"c1"})

	store.now = func() time.Time { return now.Add(90 * time.Second) }
	var out []string
	assert.False(t, store.Get(ctx, KindMessages, "conv-1", &out))
	assert.True(t, store.Get(ctx, KindConversations, "user-1", &out))

	store.now = func() time.Time { return now.Add(3 * time.Minute) }
	assert.False(t, store.Get(ctx, KindConversations, "user-1", &out))
}

func TestStoreZeroMaxAgesKeepDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewStoreWithMaxAges(adapter.NewMemoryKV(), 0, 0)

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, KindMessages, "conv-1", []string{"a"})

	store.now = func() time.Time { return now.Add(4 * time.Minute) }
	var out []string
	assert.True(t, store.Get(ctx, KindMessages, "conv-1", &out))
}

func TestStoreProfileNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := NewStore(adapter.NewMemoryKV())

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Put(ctx, KindProfile, "user-1", map[string]string{"username": "ana"})

	store.now = func() time.Time { return now.Add(72 * time.Hour) }
	var out map[string]string
	assert.True(t, store.Get(ctx, KindProfile, "user-1", &out))
}

func TestStoreSchemaMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	kv := adapter.NewMemoryKV()
	store := NewStore(kv)

	store.Put(ctx, KindMessages, "conv-1", []string{"a"})

	// Rewrite the entry with a foreign schema version.
	raw, err := kv.ReadKey(ctx, "dmsync:messages:conv-1")
	require.NoError(t, err)
	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	entry.SchemaVersion = 99
	tampered, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, kv.WriteKey(ctx, "dmsync:messages:conv-1", string(tampered), 0))

	var out []string
	assert.False(t, store.Get(ctx, KindMessages, "conv-1", &out))
}

func TestStoreSwallowsBackendFailures(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingKV{})

	// None of these may panic or surface an error.
	store.Put(ctx, KindMessages, "conv-1", []string{"a"})
	store.Invalidate(ctx, KindMessages, "conv-1")

	var out []string
	assert.False(t, store.Get(ctx, KindMessages, "conv-1", &out))
}

func TestStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewStore(adapter.NewMemoryKV())

	store.Put(ctx, KindProfile, "user-1", "p")
	store.Invalidate(ctx, KindProfile, "user-1")

	var out string
	assert.False(t, store.Get(ctx, KindProfile, "user-1", &out))
}

func TestMemoryKVMiss(t *testing.T) {
	kv := adapter.NewMemoryKV()
	_, err := kv.ReadKey(context.Background(), "absent")
	assert.Equal(t, port.ErrMiss, err)
}
