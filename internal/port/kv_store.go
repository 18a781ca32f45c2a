package port

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable marks a failure to reach the KV store. Callers wrap it
// around the driver error so transports can report it as retryable.
var ErrStoreUnavailable = errors.New("store unavailable")

type KVStore interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX sets key only if absent, returns false if it already exists
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes keys, missing keys are ignored
	Del(ctx context.Context, keys ...string) error

	// DelIfEquals removes key only while it still holds value
	DelIfEquals(ctx context.Context, key string, value []byte) (bool, error)

	// ExpireIfEquals resets the TTL of key only while it still holds value
	ExpireIfEquals(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Incr atomically increments the counter at key and returns the new value
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// RPush appends values to the list at key
	RPush(ctx context.Context, key string, values ...[]byte) error

	// LRange returns list elements between start and stop inclusive
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
}
