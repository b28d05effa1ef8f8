package limiter

import (
	"sync"
	"time"
)

const defaultShards = 64

// keyedStore maps a key to exactly one state value of type S and serializes
// access to it. Shard locks are held only for lookup and insert; the
// read-modify-write of a decision runs under the entry's own lock.
type keyedStore[S any] struct {
	shards []*shard[S]
	fresh  func() S
}

type shard[S any] struct {
	mu      sync.Mutex
	entries map[string]*entry[S]
}

type entry[S any] struct {
	mu       sync.Mutex
	state    S
	lastSeen time.Time
	evicted  bool
}

func newKeyedStore[S any](shards int, fresh func() S) *keyedStore[S] {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &keyedStore[S]{
		shards: make([]*shard[S], shards),
		fresh:  fresh,
	}
	for i := range s.shards {
		s.shards[i] = &shard[S]{entries: make(map[string]*entry[S])}
	}
	return s
}

// do runs fn with exclusive access to key's entry, creating it on first use.
func (s *keyedStore[S]) do(key string, now time.Time, fn func(e *entry[S])) {
	sh := s.shardFor(key)
	for {
		sh.mu.Lock()
		e, ok := sh.entries[key]
		if !ok {
			e = &entry[S]{state: s.fresh()}
			sh.entries[key] = e
		}
		sh.mu.Unlock()

		e.mu.Lock()
		if e.evicted {
			// Lost a race with the janitor; the key now maps to a new entry.
			e.mu.Unlock()
			continue
		}
		e.lastSeen = now
		fn(e)
		e.mu.Unlock()
		return
	}
}

// evict removes entries idle since before cutoff whose state reports
// idle(state, now) == true, meaning it is indistinguishable from fresh.
func (s *keyedStore[S]) evict(now, cutoff time.Time, idle func(st *S, now time.Time) bool) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			e.mu.Lock()
			if e.lastSeen.Before(cutoff) && idle(&e.state, now) {
				e.evicted = true
				delete(sh.entries, key)
				removed++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of live keys.
func (s *keyedStore[S]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *keyedStore[S]) shardFor(key string) *shard[S] {
	// FNV-1a, inlined to avoid allocating a hash.Hash per call.
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return s.shards[h%uint32(len(s.shards))]
}

// janitor periodically runs a cleanup function until closed. It ticks on wall
// time; eviction reads the limiter clock when it runs.
type janitor struct {
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

func startJanitor(interval time.Duration, cleanup func()) *janitor {
	j := &janitor{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if interval <= 0 {
		close(j.doneCh)
		return j
	}
	go func() {
		defer close(j.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanup()
			case <-j.stopCh:
				return
			}
		}
	}()
	return j
}

func (j *janitor) stop() {
	j.closeOnce.Do(func() {
		close(j.stopCh)
		<-j.doneCh
	})
}
