package limiter

import (
	"github.com/redis/go-redis/v9"

	internallimiter "github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/pkg/clock"
)

// Backend decides against externally stored state at a given instant.
type Backend = internallimiter.Backend

// StorageLimiter adapts a Backend to the Limiter interface.
type StorageLimiter = internallimiter.StorageLimiter

// RedisLeakyBucket keeps leaky bucket cursors in Redis.
type RedisLeakyBucket = internallimiter.RedisLeakyBucket

// RedisTokenBucket keeps token buckets in Redis.
type RedisTokenBucket = internallimiter.RedisTokenBucket

// NewStorageLimiter wraps a Backend, reading time from c.
func NewStorageLimiter(backend Backend, c clock.Clock) (*StorageLimiter, error) {
	return internallimiter.NewStorageLimiter(backend, c)
}

// NewRedisLeakyBucket creates a leaky bucket backend shared through Redis.
func NewRedisLeakyBucket(client redis.Scripter, cfg Config, prefix string) (*RedisLeakyBucket, error) {
	return internallimiter.NewRedisLeakyBucket(client, cfg, prefix)
}

// NewRedisTokenBucket creates a token bucket backend shared through Redis.
func NewRedisTokenBucket(client redis.Scripter, cfg Config, s Scheduler, prefix string) (*RedisTokenBucket, error) {
	return internallimiter.NewRedisTokenBucket(client, cfg, s, prefix)
}
