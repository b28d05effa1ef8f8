package limiter

import (
	internallimiter "github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm = internallimiter.Algorithm

const (
	AlgorithmLeakyBucket = internallimiter.AlgorithmLeakyBucket
	AlgorithmTokenBucket = internallimiter.AlgorithmTokenBucket
)

// ErrUnavailable is returned when limiter state cannot be reached.
var ErrUnavailable = internallimiter.ErrUnavailable

// Limiter is the core rate limiting interface.
type Limiter = internallimiter.Limiter

// Decision captures the result of a rate limit check.
type Decision = internallimiter.Decision

// Config holds parameters for creating a limiter.
type Config = internallimiter.Config

// DefaultConfig returns the leaky bucket with one second cost and grace.
func DefaultConfig() Config {
	return internallimiter.DefaultConfig()
}
