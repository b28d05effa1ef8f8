package storage

import (
	"context"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
)

// MemoryStorage is the single-node Storage. A gate running without Redis
// keeps its fetched key set documents here, each under the cache TTL, so a
// process restart forces a fresh fetch.
//
// Deadlines are read from the Clock, so a VirtualClock expires entries
// deterministically. Expired entries read as missing at once but occupy
// memory until Cleanup runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	clock   clock.Clock
}

type cacheEntry struct {
	doc      []byte
	deadline time.Time // zero: kept until deleted
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

func NewMemoryStorage(c clock.Clock) *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]cacheEntry),
		clock:   c,
	}
}

// Get returns a private copy of the document under key, or nil once its TTL
// has run out.
func (s *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || e.expired(s.clock.Now()) {
		return nil, nil
	}
	doc := make([]byte, len(e.doc))
	copy(doc, e.doc)
	return doc, nil
}

// Set stores a copy of doc. A ttl of zero or less keeps it until Delete.
func (s *MemoryStorage) Set(_ context.Context, key string, doc []byte, ttl time.Duration) error {
	e := cacheEntry{doc: append([]byte(nil), doc...)}
	if ttl > 0 {
		e.deadline = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Cleanup drops expired documents and returns how many it dropped. The serve
// command calls it on a ticker.
func (s *MemoryStorage) Cleanup() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// Len counts stored documents, expired ones included until Cleanup.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
