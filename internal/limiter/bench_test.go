package limiter

import (
	"fmt"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
)

// BenchmarkLeakyBucket_SingleKey measures throughput for a single key.
func BenchmarkLeakyBucket_SingleKey(b *testing.B) {
	vc := clock.NewVirtualClock(epoch)
	lb, _ := NewLeakyBucket(leakyConfig(time.Millisecond, time.Millisecond), vc)
	defer lb.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lb.Decide(ctx, "1.2.3.4")
	}
}

// BenchmarkLeakyBucket_Parallel measures concurrent throughput across keys.
func BenchmarkLeakyBucket_Parallel(b *testing.B) {
	vc := clock.NewVirtualClock(epoch)
	lb, _ := NewLeakyBucket(leakyConfig(time.Millisecond, time.Millisecond), vc)
	defer lb.Close()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			lb.Decide(ctx, fmt.Sprintf("10.0.0.%d", i%100))
			i++
		}
	})
}

// BenchmarkTokenBucket_MultiKey measures throughput across many keys.
func BenchmarkTokenBucket_MultiKey(b *testing.B) {
	vc := clock.NewVirtualClock(epoch)
	q := scheduler.New(vc)
	defer q.Stop()
	tb, _ := NewTokenBucket(tokenConfig(1000, 1, time.Minute), vc, q)
	defer tb.Close()

	keys := make([]string, 1000)
	for i := range keys {
		keys[i] = fmt.Sprintf("user-%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Decide(ctx, keys[i%len(keys)])
	}
}

// BenchmarkTokenBucket_Parallel measures concurrent throughput.
func BenchmarkTokenBucket_Parallel(b *testing.B) {
	vc := clock.NewVirtualClock(epoch)
	q := scheduler.New(vc)
	defer q.Stop()
	tb, _ := NewTokenBucket(tokenConfig(1000000, 1, time.Minute), vc, q)
	defer tb.Close()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			tb.Decide(ctx, fmt.Sprintf("user-%d", i%100))
			i++
		}
	})
}

// BenchmarkVirtualClock_Now measures VirtualClock.Now() overhead.
func BenchmarkVirtualClock_Now(b *testing.B) {
	vc := clock.NewVirtualClock(epoch)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			vc.Now()
		}
	})
}
