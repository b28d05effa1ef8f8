package limiter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
)

// Backend keeps limiter state outside the process. Decide must be atomic per
// key on the backend side.
type Backend interface {
	Decide(ctx context.Context, key string, now time.Time) (Decision, error)
	Close() error
}

// StorageLimiter adapts a Backend to the Limiter interface.
type StorageLimiter struct {
	backend Backend
	clock   clock.Clock
}

// NewStorageLimiter creates a Limiter backed by an external store.
func NewStorageLimiter(backend Backend, c clock.Clock) (*StorageLimiter, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if c == nil {
		return nil, fmt.Errorf("clock is required")
	}

	return &StorageLimiter{
		backend: backend,
		clock:   c,
	}, nil
}

// Decide delegates to the backend. Any backend failure is reported as
// ErrUnavailable with a refusing decision, never as an admission.
func (l *StorageLimiter) Decide(ctx context.Context, key string) (Decision, error) {
	d, err := l.backend.Decide(ctx, key, l.clock.Now())
	if err != nil {
		log.Printf("storage limiter check failed for key %q: %v", key, err)
		return Decision{Allowed: false}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return d, nil
}

// Close releases backend resources.
func (l *StorageLimiter) Close() error {
	return l.backend.Close()
}
