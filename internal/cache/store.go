package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned by a nil or unconfigured store.
var ErrStoreUnavailable = errors.New("cache: store not initialised")

// Store is the shared key/value cache behind rate limiting and refresh token lookups. Values are
// advisory: callers must treat a miss, an error or a stale value as "ask the database".
type Store interface {
	// IncrementWithTTL bumps a fixed-window counter, starting a new window when the previous one
	// has lapsed, and returns the count plus the time left in the window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Set stores value under key; a non-positive ttl keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get reports found=false for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*DatabaseStore)(nil)
)
