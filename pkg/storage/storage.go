package storage

import (
	"context"

	"github.com/redis/go-redis/v9"

	internalstorage "github.com/SmitUplenchwar2687/Tollgate/internal/storage"
	"github.com/SmitUplenchwar2687/Tollgate/pkg/clock"
)

// Storage is a byte-oriented key/value store with per-key expiry.
type Storage = internalstorage.Storage

// MemoryStorage keeps values in process memory.
type MemoryStorage = internalstorage.MemoryStorage

// RedisStorage keeps values in Redis.
type RedisStorage = internalstorage.RedisStorage

// RedisConfig describes how to reach Redis.
type RedisConfig = internalstorage.RedisConfig

// NewMemoryStorage creates an in-memory store whose expiry follows c.
func NewMemoryStorage(c clock.Clock) *MemoryStorage {
	return internalstorage.NewMemoryStorage(c)
}

// NewRedisClient connects to Redis and waits for it to answer.
func NewRedisClient(ctx context.Context, cfg *RedisConfig) (redis.UniversalClient, error) {
	return internalstorage.NewRedisClient(ctx, cfg)
}

// NewRedisStorage wraps a client owned by the caller.
func NewRedisStorage(client redis.UniversalClient, prefix string) (*RedisStorage, error) {
	return internalstorage.NewRedisStorage(client, prefix)
}

// DialRedisStorage connects and returns a storage owning its client.
func DialRedisStorage(ctx context.Context, cfg *RedisConfig, prefix string) (*RedisStorage, error) {
	return internalstorage.DialRedisStorage(ctx, cfg, prefix)
}
