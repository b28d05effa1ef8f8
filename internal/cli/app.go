package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/config"
	"github.com/SmitUplenchwar2687/Tollgate/internal/identity"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
	"github.com/SmitUplenchwar2687/Tollgate/internal/server"
	"github.com/SmitUplenchwar2687/Tollgate/internal/storage"
)

const storageCleanupInterval = time.Minute

type closableLimiter interface {
	limiter.Limiter
	io.Closer
}

// createLimiter builds the configured algorithm. A nil rdb keeps state in
// process memory; otherwise state lives in Redis and every node sharing it
// sees the same limits.
func createLimiter(cfg limiter.Config, clk clock.Clock, sched scheduler.Scheduler, rdb redis.UniversalClient, prefix string) (closableLimiter, error) {
	if rdb == nil {
		switch cfg.Algorithm {
		case limiter.AlgorithmLeakyBucket:
			return limiter.NewLeakyBucket(cfg, clk)
		case limiter.AlgorithmTokenBucket:
			return limiter.NewTokenBucket(cfg, clk, sched)
		default:
			return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
		}
	}

	var (
		backend limiter.Backend
		err     error
	)
	switch cfg.Algorithm {
	case limiter.AlgorithmLeakyBucket:
		backend, err = limiter.NewRedisLeakyBucket(rdb, cfg, prefix)
	case limiter.AlgorithmTokenBucket:
		backend, err = limiter.NewRedisTokenBucket(rdb, cfg, sched, prefix)
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}
	return limiter.NewStorageLimiter(backend, clk)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

// app owns everything a running server needs. Resources are released in
// reverse order of acquisition.
type app struct {
	server  *server.Server
	hub     *server.Hub
	emitter *analytics.Emitter
	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func newApp(ctx context.Context, cfg config.Config, clk clock.Clock) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	sched := scheduler.New(clk)
	a.onClose(func() error { sched.Stop(); return nil })

	var (
		rdb redis.UniversalClient
		kv  storage.Storage
	)
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		rdb, err = storage.NewRedisClient(ctx, &cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.onClose(rdb.Close)
		rs, err := storage.NewRedisStorage(rdb, cfg.Storage.Prefix+"kv:")
		if err != nil {
			return nil, err
		}
		kv = rs
		a.onClose(rs.Close)
	default:
		mem := storage.NewMemoryStorage(clk)
		stop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(storageCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					mem.Cleanup()
				}
			}
		}()
		kv = mem
		a.onClose(func() error { close(stop); return nil })
	}

	lim, err := createLimiter(cfg.Limiter, clk, sched, rdb, cfg.Storage.Prefix+"rl:")
	if err != nil {
		return nil, fmt.Errorf("creating limiter: %w", err)
	}
	a.onClose(lim.Close)
	if cfg.Limiter.Algorithm == limiter.AlgorithmLeakyBucket {
		log.Printf("leaky bucket: cost=%s grace=%s admits %d request(s) per key at once",
			cfg.Limiter.Cost, cfg.Limiter.Grace, cfg.Limiter.BurstAllowance())
	}

	var gate server.Authenticator
	if cfg.Gated() {
		url := cfg.Identity.JWKSURL
		if url == "" {
			url = identity.CertsURL(cfg.Identity.Issuer)
		}
		keys, err := identity.NewKeySet(identity.KeySetConfig{
			URL:             url,
			Store:           kv,
			CacheTTL:        cfg.Identity.CacheTTL,
			RefreshInterval: cfg.Identity.RefreshInterval,
			Clock:           clk,
		})
		if err != nil {
			return nil, fmt.Errorf("creating key set: %w", err)
		}
		g, err := identity.NewGate(identity.GateConfig{
			Issuer:   cfg.Identity.Issuer,
			Audience: cfg.Identity.Audience,
			Keys:     keys,
			Clock:    clk,
		})
		if err != nil {
			return nil, fmt.Errorf("creating identity gate: %w", err)
		}
		gate = g
		log.Printf("identity gate enabled for environment %q (issuer %s)", cfg.Server.Environment, cfg.Identity.Issuer)
	}

	var sinks analytics.MultiSink
	if cfg.Analytics.LiveStream {
		a.hub = server.NewHub()
		sinks = append(sinks, a.hub)
		log.Printf("streaming analytics on /ws")
	}
	if path := cfg.Analytics.RecordFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening record file: %w", err)
		}
		a.onClose(f.Close)
		sinks = append(sinks, analytics.NewStreamSink(f))
		log.Printf("recording analytics to %s", path)
	}
	if cfg.Analytics.RedisStats {
		sinks = append(sinks, analytics.NewRedisSink(rdb,
			analytics.WithRedisPrefix(cfg.Analytics.RedisPrefix),
			analytics.WithRedisTTL(cfg.Analytics.RedisTTL),
			analytics.WithTrackKeys(cfg.Analytics.TrackKeys),
		))
	}
	a.emitter = analytics.NewEmitter(sinks, cfg.Analytics.Buffer)

	a.server, err = server.New(server.Options{
		Addr:           cfg.Server.Addr,
		Limiter:        lim,
		Algorithm:      cfg.Limiter.Algorithm,
		Clock:          clk,
		ClientIPHeader: cfg.Server.ClientIPHeader,
		Version:        cfg.Server.Version,
		Gate:           gate,
		Emitter:        a.emitter,
		Hub:            a.hub,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// shutdown stops accepting requests, drains pending analytics and releases
// every resource.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down server: %w", err))
		}
	}
	errs = append(errs, a.release())
	return errors.Join(errs...)
}

func (a *app) release() error {
	var errs []error
	if a.emitter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.emitter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining analytics: %w", err))
		}
		cancel()
		if n := a.emitter.Dropped(); n > 0 {
			log.Printf("dropped %d analytics records", n)
		}
		a.emitter = nil
	}
	if a.hub != nil {
		a.hub.Close()
		a.hub = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
