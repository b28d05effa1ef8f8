package storage

import (
	"context"
	"time"
)

// Storage is a small TTL key-value store for cached documents such as the
// identity provider's signing keys. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Get retrieves the stored value for a key.
	// Returns nil, nil if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value for a key with an expiration duration.
	// If exp is 0, the key does not expire.
	Set(ctx context.Context, key string, value []byte, exp time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error
}
