package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink keeps running counters of response statuses in Redis hashes:
// a cumulative total, a per-minute bucket, and breakdowns by path and country.
// Per-key counters are optional since keys are client addresses.
type RedisSink struct {
	rdb redis.Cmdable

	prefix string
	// ttl applies to the minute buckets and per-key hashes only; the totals
	// are cumulative.
	ttl       time.Duration
	trackKeys bool
}

type RedisSinkOption func(*RedisSink)

func WithRedisPrefix(prefix string) RedisSinkOption {
	return func(s *RedisSink) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithRedisTTL(d time.Duration) RedisSinkOption {
	return func(s *RedisSink) { s.ttl = d }
}

func WithTrackKeys(track bool) RedisSinkOption {
	return func(s *RedisSink) { s.trackKeys = track }
}

func NewRedisSink(rdb redis.Cmdable, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		rdb:    rdb,
		prefix: "tollgate:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSink) Write(ctx context.Context, rec Record) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := rec.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	field := strconv.Itoa(rec.Status)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := s.MinuteKey(at)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if path := strings.TrimSpace(rec.Path); path != "" {
		pipe.HIncrBy(ctx, s.prefix+":path", path+":"+field, 1)
	}
	if country := strings.TrimSpace(rec.Country); country != "" {
		pipe.HIncrBy(ctx, s.prefix+":country", country, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(rec.Key); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording stats: %w", err)
	}
	return nil
}

// MinuteKey returns the hash holding the counters for the minute containing at.
func (s *RedisSink) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

// Totals returns the cumulative count per status code.
func (s *RedisSink) Totals(ctx context.Context) (map[int]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, fmt.Errorf("reading stats totals: %w", err)
	}
	out := make(map[int]int64, len(raw))
	for k, v := range raw {
		status, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing total for %s: %w", k, err)
		}
		out[status] = n
	}
	return out, nil
}
