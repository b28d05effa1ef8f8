package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm string

const (
	AlgorithmLeakyBucket Algorithm = "leaky_bucket_grace"
	AlgorithmTokenBucket Algorithm = "token_bucket_alarm"
)

// ErrUnavailable is returned when the backing store for limiter state cannot
// be reached. Callers must treat it as a refusal.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter is the core rate limiting interface.
// All algorithms implement this against a Clock.
type Limiter interface {
	// Decide charges one request to key and reports whether it may proceed.
	// Calls for the same key are linearizable; calls for different keys
	// never contend on a shared lock.
	Decide(ctx context.Context, key string) (Decision, error)
}

// Decision captures the result of a rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // Zero when allowed
	Remaining  int           // Tokens left after this call (token bucket)
	Limit      int           // Bucket capacity (token bucket)

	// NextAllowedAt is the leaky-bucket cursor after this call.
	NextAllowedAt time.Time
}

// RetryAfterMs returns RetryAfter in whole milliseconds, rounded up so a
// positive wait never reports as zero.
func (d Decision) RetryAfterMs() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Millisecond - 1) / time.Millisecond)
}

func (d Decision) MarshalJSON() ([]byte, error) {
	out := struct {
		Allowed       bool       `json:"allowed"`
		RetryAfterMs  int64      `json:"retry_after_ms"`
		Remaining     int        `json:"remaining"`
		Limit         int        `json:"limit"`
		NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
	}{
		Allowed:      d.Allowed,
		RetryAfterMs: d.RetryAfterMs(),
		Remaining:    d.Remaining,
		Limit:        d.Limit,
	}
	if !d.NextAllowedAt.IsZero() {
		out.NextAllowedAt = &d.NextAllowedAt
	}
	return json.Marshal(out)
}

// Config holds the parameters for creating a limiter.
type Config struct {
	Algorithm Algorithm `json:"algorithm"`

	// Leaky bucket.
	Cost  time.Duration `json:"cost"`  // Cursor advance per request, granted or not
	Grace time.Duration `json:"grace"` // Tolerance subtracted from the reported wait

	// Token bucket.
	Capacity       int           `json:"capacity"`
	RefillAmount   int           `json:"refill_amount"`
	RefillInterval time.Duration `json:"refill_interval"`
	DenyWait       time.Duration `json:"deny_wait"` // Nominal wait reported on refusal; 0 = RefillInterval

	// In-memory store.
	IdleTTL time.Duration `json:"idle_ttl"` // 0 disables eviction
	Shards  int           `json:"shards"`
}

// DefaultConfig mirrors the original edge worker: one request per second
// with a one second grace window.
func DefaultConfig() Config {
	return Config{
		Algorithm:      AlgorithmLeakyBucket,
		Cost:           time.Second,
		Grace:          time.Second,
		Capacity:       5,
		RefillAmount:   1,
		RefillInterval: time.Second,
		IdleTTL:        10 * time.Minute,
		Shards:         defaultShards,
	}
}

// Validate checks the parameters used by the configured algorithm.
func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmLeakyBucket:
		if c.Cost <= 0 {
			return fmt.Errorf("cost must be positive, got %s", c.Cost)
		}
		if c.Grace < 0 {
			return fmt.Errorf("grace must not be negative, got %s", c.Grace)
		}
		// A fresh key waits Cost-Grace, so a smaller grace refuses everything.
		if c.Grace < c.Cost {
			return fmt.Errorf("grace (%s) must be at least cost (%s) or no request is ever admitted", c.Grace, c.Cost)
		}
	case AlgorithmTokenBucket:
		if c.Capacity <= 0 {
			return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
		}
		if c.RefillAmount <= 0 {
			return fmt.Errorf("refill_amount must be positive, got %d", c.RefillAmount)
		}
		if c.RefillInterval <= 0 {
			return fmt.Errorf("refill_interval must be positive, got %s", c.RefillInterval)
		}
		if c.DenyWait < 0 {
			return fmt.Errorf("deny_wait must not be negative, got %s", c.DenyWait)
		}
	default:
		return fmt.Errorf("unknown algorithm %q, must be one of: %s, %s", c.Algorithm, AlgorithmLeakyBucket, AlgorithmTokenBucket)
	}
	if c.IdleTTL < 0 {
		return fmt.Errorf("idle_ttl must not be negative, got %s", c.IdleTTL)
	}
	if c.Shards < 0 {
		return fmt.Errorf("shards must not be negative, got %d", c.Shards)
	}
	return nil
}

// BurstAllowance reports how many requests a fresh leaky-bucket key admits at
// the same instant. It is 1 when Grace equals Cost.
func (c Config) BurstAllowance() int {
	if c.Cost <= 0 {
		return 0
	}
	return int(c.Grace / c.Cost)
}

func (c Config) denyWait() time.Duration {
	if c.DenyWait > 0 {
		return c.DenyWait
	}
	return c.RefillInterval
}
