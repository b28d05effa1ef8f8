package limiter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
)

// TokenBucketAlarm is the decision logic of the token bucket whose refill is
// driven by a timer rather than by request arrivals.
//
// A burst may consume up to Capacity tokens at once. While the bucket is below
// capacity exactly one refill alarm is pending; each alarm adds RefillAmount
// tokens and re-arms itself until the bucket is full, then the key goes
// dormant.
type TokenBucketAlarm struct {
	Capacity       int
	RefillAmount   int
	RefillInterval time.Duration
	DenyWait       time.Duration
}

// TokenState is the per-key token bucket state.
type TokenState struct {
	Tokens             int
	PendingReplenishAt time.Time // Zero when no alarm is pending
}

// Fresh returns the state of a key never seen before.
func (a TokenBucketAlarm) Fresh() TokenState {
	return TokenState{Tokens: a.Capacity}
}

// Take charges one request at now. arm reports that st now records a new
// pending alarm at st.PendingReplenishAt which the caller must schedule.
func (a TokenBucketAlarm) Take(st *TokenState, now time.Time) (d Decision, arm bool) {
	if st.Tokens > 0 {
		st.Tokens--
		d = Decision{Allowed: true}
	} else {
		d = Decision{Allowed: false, RetryAfter: a.DenyWait}
	}
	d.Remaining = st.Tokens
	d.Limit = a.Capacity

	if st.Tokens < a.Capacity && st.PendingReplenishAt.IsZero() {
		st.PendingReplenishAt = now.Add(a.RefillInterval)
		arm = true
	}
	return d, arm
}

// Replenish applies the alarm that fired at firedAt. arm has the same meaning
// as for Take.
func (a TokenBucketAlarm) Replenish(st *TokenState, firedAt time.Time) (arm bool) {
	st.Tokens += a.RefillAmount
	if st.Tokens > a.Capacity {
		st.Tokens = a.Capacity
	}
	st.PendingReplenishAt = time.Time{}

	if st.Tokens < a.Capacity {
		st.PendingReplenishAt = firedAt.Add(a.RefillInterval)
		return true
	}
	return false
}

// TokenBucket is the in-memory keyed token-bucket limiter. Refill alarms are
// delivered through a Scheduler.
type TokenBucket struct {
	algo    TokenBucketAlarm
	clock   clock.Clock
	sched   scheduler.Scheduler
	idleTTL time.Duration
	store   *keyedStore[TokenState]
	janitor *janitor
}

// NewTokenBucket creates a token-bucket limiter from cfg.
func NewTokenBucket(cfg Config, c clock.Clock, s scheduler.Scheduler) (*TokenBucket, error) {
	cfg.Algorithm = AlgorithmTokenBucket
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if s == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	algo := TokenBucketAlarm{
		Capacity:       cfg.Capacity,
		RefillAmount:   cfg.RefillAmount,
		RefillInterval: cfg.RefillInterval,
		DenyWait:       cfg.denyWait(),
	}
	tb := &TokenBucket{
		algo:    algo,
		clock:   c,
		sched:   s,
		idleTTL: cfg.IdleTTL,
		store:   newKeyedStore(cfg.Shards, algo.Fresh),
	}
	tb.janitor = startJanitor(cfg.IdleTTL, func() { tb.Cleanup() })
	return tb, nil
}

func (tb *TokenBucket) Decide(_ context.Context, key string) (Decision, error) {
	now := tb.clock.Now()

	var d Decision
	tb.store.do(key, now, func(e *entry[TokenState]) {
		var arm bool
		d, arm = tb.algo.Take(&e.state, now)
		if arm {
			tb.arm(key, e)
		}
	})
	return d, nil
}

// arm schedules the alarm recorded in e. Must be called with e.mu held.
func (tb *TokenBucket) arm(key string, e *entry[TokenState]) {
	at := e.state.PendingReplenishAt
	ok := tb.sched.Schedule(key, at, func(firedAt time.Time) {
		tb.replenish(key, e, firedAt)
	})
	if !ok {
		// Scheduler stopped or out of sync; do not claim an alarm we lack.
		log.Printf("token bucket refill for key %q at %s was not scheduled", key, at.Format(time.RFC3339Nano))
		e.state.PendingReplenishAt = time.Time{}
	}
}

func (tb *TokenBucket) replenish(key string, e *entry[TokenState], firedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted {
		return
	}
	if tb.algo.Replenish(&e.state, firedAt) {
		tb.arm(key, e)
	}
}

// State returns a copy of key's state and whether the key is tracked.
func (tb *TokenBucket) State(key string) (TokenState, bool) {
	sh := tb.store.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return TokenState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Cleanup evicts full, dormant keys idle for longer than the idle TTL.
func (tb *TokenBucket) Cleanup() int {
	if tb.idleTTL <= 0 {
		return 0
	}
	now := tb.clock.Now()
	return tb.store.evict(now, now.Add(-tb.idleTTL), func(st *TokenState, _ time.Time) bool {
		return st.Tokens >= tb.algo.Capacity && st.PendingReplenishAt.IsZero()
	})
}

// Len returns the number of tracked keys.
func (tb *TokenBucket) Len() int {
	return tb.store.Len()
}

// Close stops the janitor. Pending alarms stay with the scheduler, which the
// caller owns.
func (tb *TokenBucket) Close() error {
	tb.janitor.stop()
	return nil
}
