package limiter

import (
	internallimiter "github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
	"github.com/SmitUplenchwar2687/Tollgate/pkg/clock"
)

// LeakyBucket spaces requests with a per-key cursor and a grace window.
type LeakyBucket = internallimiter.LeakyBucket

// TokenBucket refills per-key buckets from scheduled alarms.
type TokenBucket = internallimiter.TokenBucket

// Scheduler delivers refill alarms.
type Scheduler = scheduler.Scheduler

// NewScheduler creates the alarm queue token buckets refill from. Stop it
// when done.
func NewScheduler(c clock.Clock) *scheduler.Queue {
	return scheduler.New(c)
}

// NewLeakyBucket creates an in-memory leaky bucket limiter.
func NewLeakyBucket(cfg Config, c clock.Clock) (*LeakyBucket, error) {
	return internallimiter.NewLeakyBucket(cfg, c)
}

// NewTokenBucket creates an in-memory token bucket limiter.
func NewTokenBucket(cfg Config, c clock.Clock, s Scheduler) (*TokenBucket, error) {
	return internallimiter.NewTokenBucket(cfg, c, s)
}
