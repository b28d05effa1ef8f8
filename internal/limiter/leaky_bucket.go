package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
)

// LeakyBucketGrace is the decision logic of the leaky bucket with a grace
// window. Its only state is a forward-only cursor, nextAllowedAt.
//
// Every request, granted or refused, pushes the cursor forward by Cost, so a
// key is held to one admission per Cost no matter how hard it retries.
// Grace absorbs jitter: a caller arriving on schedule is not refused.
type LeakyBucketGrace struct {
	Cost  time.Duration
	Grace time.Duration
}

// Step applies one request at now to the cursor next and returns the new
// cursor with the decision. A zero cursor means unconstrained.
func (a LeakyBucketGrace) Step(next, now time.Time) (time.Time, Decision) {
	if next.Before(now) {
		next = now
	}
	next = next.Add(a.Cost)

	wait := next.Sub(now) - a.Grace
	if wait < 0 {
		wait = 0
	}
	return next, Decision{
		Allowed:       wait == 0,
		RetryAfter:    wait,
		Limit:         1,
		NextAllowedAt: next,
	}
}

type leakyState struct {
	nextAllowedAt time.Time
}

// LeakyBucket is the in-memory keyed leaky-bucket limiter.
type LeakyBucket struct {
	algo    LeakyBucketGrace
	clock   clock.Clock
	idleTTL time.Duration
	store   *keyedStore[leakyState]
	janitor *janitor
}

// NewLeakyBucket creates a leaky-bucket limiter from cfg. When cfg.IdleTTL is
// positive a background janitor evicts keys whose cursor has passed.
func NewLeakyBucket(cfg Config, c clock.Clock) (*LeakyBucket, error) {
	cfg.Algorithm = AlgorithmLeakyBucket
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("clock is required")
	}

	lb := &LeakyBucket{
		algo:    LeakyBucketGrace{Cost: cfg.Cost, Grace: cfg.Grace},
		clock:   c,
		idleTTL: cfg.IdleTTL,
		store:   newKeyedStore(cfg.Shards, func() leakyState { return leakyState{} }),
	}
	lb.janitor = startJanitor(cfg.IdleTTL, func() { lb.Cleanup() })
	return lb, nil
}

func (lb *LeakyBucket) Decide(_ context.Context, key string) (Decision, error) {
	now := lb.clock.Now()

	var d Decision
	lb.store.do(key, now, func(e *entry[leakyState]) {
		e.state.nextAllowedAt, d = lb.algo.Step(e.state.nextAllowedAt, now)
	})
	return d, nil
}

// Cleanup evicts keys idle for longer than the idle TTL whose cursor is no
// longer ahead of now. Such a key behaves exactly like a fresh one.
func (lb *LeakyBucket) Cleanup() int {
	if lb.idleTTL <= 0 {
		return 0
	}
	now := lb.clock.Now()
	return lb.store.evict(now, now.Add(-lb.idleTTL), func(st *leakyState, now time.Time) bool {
		return !st.nextAllowedAt.After(now)
	})
}

// Len returns the number of tracked keys.
func (lb *LeakyBucket) Len() int {
	return lb.store.Len()
}

// Close stops the janitor.
func (lb *LeakyBucket) Close() error {
	lb.janitor.stop()
	return nil
}
