package storage

import (
	"context"
	"testing"
	"time"
)

func TestRedisStorage_SetGetDelete(t *testing.T) {
	s, cleanup := newRedisStorageForTest(t)
	defer cleanup()

	if err := s.Set(ctx, "jwks", []byte(`{"keys":[]}`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, err := s.Get(ctx, "jwks")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(val) != `{"keys":[]}` {
		t.Fatalf("Get() = %q", val)
	}

	raw, err := s.Client().Get(ctx, "test:jwks").Result()
	if err != nil || raw != `{"keys":[]}` {
		t.Fatalf("prefixed key = %q, %v", raw, err)
	}

	if err := s.Delete(ctx, "jwks"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	val, err = s.Get(ctx, "jwks")
	if err != nil {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if val != nil {
		t.Fatalf("Get() after delete = %q, want nil", val)
	}
}

func TestRedisStorage_GetMissing(t *testing.T) {
	s, cleanup := newRedisStorageForTest(t)
	defer cleanup()

	val, err := s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != nil {
		t.Fatalf("Get(missing) = %q, want nil", val)
	}
}

func TestRedisStorage_Expiration(t *testing.T) {
	s, cleanup := newRedisStorageForTest(t)
	defer cleanup()

	if err := s.Set(ctx, "short", []byte("v"), 300*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	ttl, err := s.Client().PTTL(ctx, "test:short").Result()
	if err != nil {
		t.Fatalf("PTTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 300*time.Millisecond {
		t.Fatalf("ttl = %v, want (0, 300ms]", ttl)
	}

	time.Sleep(500 * time.Millisecond)
	val, _ := s.Get(ctx, "short")
	if val != nil {
		t.Fatalf("expired key returned %q", val)
	}
}

func TestNewRedisClient_FailFastOnBadEndpoint(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &RedisConfig{
		Host:        "127.0.0.1",
		Port:        1,
		PoolSize:    1,
		MaxRetries:  1,
		DialTimeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected constructor to fail for bad endpoint")
	}
}

func TestNewRedisClient_ClusterRequiresNodes(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &RedisConfig{Cluster: true})
	if err == nil {
		t.Fatal("expected error when cluster=true and cluster_nodes is empty")
	}
}

func TestNewRedisClient_NilConfig(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewRedisStorage_RequiresClient(t *testing.T) {
	if _, err := NewRedisStorage(nil, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestNormalizeRedisConfig_Defaults(t *testing.T) {
	conf, err := normalizeRedisConfig(&RedisConfig{Host: "localhost", Port: 6379})
	if err != nil {
		t.Fatalf("normalizeRedisConfig() error = %v", err)
	}
	if conf.PoolSize != defaultRedisPoolSize {
		t.Errorf("PoolSize = %d, want %d", conf.PoolSize, defaultRedisPoolSize)
	}
	if conf.MaxRetries != defaultRedisMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", conf.MaxRetries, defaultRedisMaxRetries)
	}
	if conf.DialTimeout != defaultRedisDialTimeout {
		t.Errorf("DialTimeout = %v, want %v", conf.DialTimeout, defaultRedisDialTimeout)
	}

	if _, err := normalizeRedisConfig(&RedisConfig{Host: "localhost"}); err == nil {
		t.Error("expected error for missing port")
	}
}

func TestRedisStorage_Close_Idempotent(t *testing.T) {
	s, cleanup := newRedisStorageForTest(t)
	defer cleanup()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestRedisStorage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*RedisStorage)(nil)
}
