package ports

import (
	"context"
	"time"
)

// Store is the only cross-instance coordination point. Implementations must
// be safe under concurrent calls from many processes; single-use nonce
// consumption and window counting rely on the atomicity of these operations,
// not on in-process locks.
type Store interface {
	// Get retrieves a value by key. Returns core.ErrNotFound for missing keys.
	Get(ctx context.Context, key string) (string, error)

	// SetNX stores a key only if it does not exist. Returns false if the key
	// was already present. This is the single-operation consumption
	// primitive behind nonce replay and double-spend prevention.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// IncrWithTTL atomically increments a counter, applying the TTL when the
	// counter is created, and returns the new count.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes a key and reports how many keys were removed.
	Delete(ctx context.Context, key string) (int64, error)
}
