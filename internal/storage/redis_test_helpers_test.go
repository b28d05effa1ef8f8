package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func redisConfigForTest(t *testing.T) (*RedisConfig, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container mapped port: %v", err)
	}

	p, err := strconv.Atoi(port.Port())
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("parse mapped port: %v", err)
	}

	cfg := &RedisConfig{
		Host:        host,
		Port:        p,
		PoolSize:    20,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
	}
	return cfg, func() { _ = container.Terminate(context.Background()) }
}

func newRedisStorageForTest(t *testing.T) (*RedisStorage, func()) {
	t.Helper()
	cfg, terminate := redisConfigForTest(t)

	store, err := DialRedisStorage(context.Background(), cfg, "test:")
	if err != nil {
		terminate()
		t.Fatalf("DialRedisStorage() error: %v", err)
	}

	cleanup := func() {
		_ = store.Close()
		terminate()
	}
	return store, cleanup
}
