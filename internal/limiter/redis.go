package limiter

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
)

const (
	defaultRedisPrefix  = "tollgate:rl:"
	refillScriptTimeout = 2 * time.Second
)

var redisLeakyBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local grace = tonumber(ARGV[3])

local next = tonumber(redis.call('GET', key))
if next == nil or next < now then
  next = now
end
next = next + cost

-- The key expires exactly when the cursor stops constraining the caller.
redis.call('SET', key, string.format('%d', next), 'PX', string.format('%d', next - now))

local wait = next - now - grace
if wait < 0 then
  wait = 0
end
return {next, wait}
`)

// The take script claims the refill alarm together with the token update.
// A claim whose deadline passed more than stale ms ago belonged to a node
// that never fired it and is taken over.
var redisTokenTakeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local amount = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local stale = tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
if tokens == nil then
  tokens = capacity
end
local pending = tonumber(redis.call('HGET', key, 'pending'))
if pending == nil then
  pending = 0
end

local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end

local armed = 0
if tokens < capacity and (pending == 0 or now > pending + stale) then
  pending = now + interval
  armed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'pending', string.format('%d', pending))
-- By then a live alarm chain would have refilled the bucket anyway.
local steps = math.ceil((capacity - tokens) / amount)
redis.call('PEXPIRE', key, string.format('%d', (steps + 1) * interval + stale))
return {allowed, tokens, armed, pending}
`)

// The refill script only applies the alarm that is currently claimed, which
// makes a late or duplicate fire harmless.
var redisTokenRefillScript = redis.NewScript(`
local key = KEYS[1]
local at = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local amount = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local stale = tonumber(ARGV[5])

local pending = tonumber(redis.call('HGET', key, 'pending'))
if pending == nil or pending ~= at then
  return {-1, 0, 0}
end

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
if tokens == nil then
  tokens = capacity
end
tokens = math.min(capacity, tokens + amount)
if tokens >= capacity then
  redis.call('DEL', key)
  return {tokens, 0, 0}
end

pending = at + interval
redis.call('HSET', key, 'tokens', tokens, 'pending', string.format('%d', pending))
local steps = math.ceil((capacity - tokens) / amount)
redis.call('PEXPIRE', key, string.format('%d', (steps + 1) * interval + stale))
return {tokens, 1, pending}
`)

// RedisLeakyBucket keeps the leaky-bucket cursor in Redis. A single Lua
// script performs the read-modify-write, so concurrent requests for a key
// are serialized by Redis even across processes.
type RedisLeakyBucket struct {
	client redis.Scripter
	prefix string
	cost   time.Duration
	grace  time.Duration
}

// NewRedisLeakyBucket constructs a Redis leaky-bucket backend. The client is
// owned by the caller.
func NewRedisLeakyBucket(client redis.Scripter, cfg Config, prefix string) (*RedisLeakyBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	cfg.Algorithm = AlgorithmLeakyBucket
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Cost < time.Millisecond {
		return nil, fmt.Errorf("cost must be at least 1ms for redis, got %s", cfg.Cost)
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &RedisLeakyBucket{
		client: client,
		prefix: prefix + "lb:",
		cost:   cfg.Cost,
		grace:  cfg.Grace,
	}, nil
}

func (b *RedisLeakyBucket) Decide(ctx context.Context, key string, now time.Time) (Decision, error) {
	if key == "" {
		return Decision{}, fmt.Errorf("key is required")
	}

	res, err := redisLeakyBucketScript.Run(ctx, b.client, []string{b.prefix + key},
		now.UnixMilli(),
		b.cost.Milliseconds(),
		b.grace.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("running redis leaky bucket script: %w", err)
	}

	values, err := scriptInts(res, 2)
	if err != nil {
		return Decision{}, err
	}

	wait := time.Duration(values[1]) * time.Millisecond
	return Decision{
		Allowed:       wait == 0,
		RetryAfter:    wait,
		Limit:         1,
		NextAllowedAt: time.UnixMilli(values[0]),
	}, nil
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (b *RedisLeakyBucket) Close() error {
	return nil
}

// RedisTokenBucket keeps token-bucket state in a Redis hash. Refill alarms are
// claimed in Redis and delivered by the local scheduler of the node that
// claimed them.
type RedisTokenBucket struct {
	client     redis.Scripter
	sched      scheduler.Scheduler
	prefix     string
	capacity   int
	amount     int
	interval   time.Duration
	denyWait   time.Duration
	staleAfter time.Duration
}

// NewRedisTokenBucket constructs a Redis token-bucket backend.
func NewRedisTokenBucket(client redis.Scripter, cfg Config, s scheduler.Scheduler, prefix string) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if s == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	cfg.Algorithm = AlgorithmTokenBucket
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefillInterval < time.Millisecond {
		return nil, fmt.Errorf("refill_interval must be at least 1ms for redis, got %s", cfg.RefillInterval)
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &RedisTokenBucket{
		client:     client,
		sched:      s,
		prefix:     prefix + "tb:",
		capacity:   cfg.Capacity,
		amount:     cfg.RefillAmount,
		interval:   cfg.RefillInterval,
		denyWait:   cfg.denyWait(),
		staleAfter: 2 * cfg.RefillInterval,
	}, nil
}

func (b *RedisTokenBucket) Decide(ctx context.Context, key string, now time.Time) (Decision, error) {
	if key == "" {
		return Decision{}, fmt.Errorf("key is required")
	}

	res, err := redisTokenTakeScript.Run(ctx, b.client, []string{b.prefix + key},
		now.UnixMilli(),
		b.capacity,
		b.amount,
		b.interval.Milliseconds(),
		b.staleAfter.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("running redis token take script: %w", err)
	}

	values, err := scriptInts(res, 4)
	if err != nil {
		return Decision{}, err
	}

	if values[2] == 1 {
		b.arm(key, time.UnixMilli(values[3]))
	}

	d := Decision{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		Limit:     b.capacity,
	}
	if !d.Allowed {
		d.RetryAfter = b.denyWait
	}
	return d, nil
}

func (b *RedisTokenBucket) arm(key string, at time.Time) {
	if !b.sched.Schedule(b.prefix+key, at, func(firedAt time.Time) {
		b.refill(key, firedAt)
	}) {
		log.Printf("redis token bucket refill for key %q at %s already pending locally", key, at.Format(time.RFC3339Nano))
	}
}

func (b *RedisTokenBucket) refill(key string, firedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), refillScriptTimeout)
	defer cancel()

	res, err := redisTokenRefillScript.Run(ctx, b.client, []string{b.prefix + key},
		firedAt.UnixMilli(),
		b.capacity,
		b.amount,
		b.interval.Milliseconds(),
		b.staleAfter.Milliseconds(),
	).Result()
	if err != nil {
		// The claim goes stale and the next request for key re-arms it.
		log.Printf("redis token bucket refill failed for key %q: %v", key, err)
		return
	}

	values, err := scriptInts(res, 3)
	if err != nil {
		log.Printf("redis token bucket refill for key %q: %v", key, err)
		return
	}
	if values[1] == 1 {
		b.arm(key, time.UnixMilli(values[2]))
	}
}

// Close is a no-op; the Redis client and scheduler are owned by the caller.
func (b *RedisTokenBucket) Close() error {
	return nil
}

func scriptInts(res interface{}, n int) ([]int64, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != n {
		return nil, fmt.Errorf("unexpected redis script result: %T", res)
	}
	out := make([]int64, n)
	for i, v := range values {
		x, err := asInt64(v)
		if err != nil {
			return nil, fmt.Errorf("parsing script result %d: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse int64 from %q: %w", x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
