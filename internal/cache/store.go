package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store holds serialized view payloads. Every operation is atomic per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Tracker records which parameterized views were requested recently. Each set carries a
// rolling TTL that is refreshed on every Add.
type Tracker interface {
	Add(ctx context.Context, set, member string, ttl time.Duration) error
	Members(ctx context.Context, set string) ([]string, error)
	Remove(ctx context.Context, set, member string) error
	// Claim sets key only if it is absent and reports whether this caller won it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Backend is a store that also tracks used keys, as both Redis and memory do.
type Backend interface {
	Store
	Tracker
}
