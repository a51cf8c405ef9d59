package port

import (
	"context"
	"time"
)

// KV is the durable key-value surface the host environment provides for
// caching. Any string-keyed store satisfies it; adapters exist for Redis and
// for an in-process map.
//
// Values are stored as strings to keep the port generic and avoid coupling to
// serialization concerns. Implementations must be concurrency-safe.
type KV interface {
	// ReadKey fetches the value for key. Misses are reported as ("", ErrMiss);
	// a non-nil error other than ErrMiss means a transport or server failure.
	ReadKey(ctx context.Context, key string) (string, error)

	// WriteKey stores value at key with the provided TTL. Zero or negative TTL
	// means no expiration (persist until evicted).
	WriteKey(ctx context.Context, key string, value string, ttl time.Duration) error

	// RemoveKey deletes key. Removing an absent key is not an error.
	RemoveKey(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrMiss signals a key miss in a typed way so callers can differentiate
// misses from transport errors.
var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "cache: miss" }
