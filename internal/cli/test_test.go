package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, cfg limiter.Config) (*clock.VirtualClock, limiter.Limiter) {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	sched := scheduler.New(vc)
	cfg.IdleTTL = 0
	lim, err := createLimiter(cfg, vc, sched, nil, "")
	if err != nil {
		t.Fatalf("createLimiter() error = %v", err)
	}
	t.Cleanup(func() {
		lim.Close()
		sched.Stop()
	})
	return vc, lim
}

func tokenBucketConfig(capacity int) limiter.Config {
	cfg := limiter.DefaultConfig()
	cfg.Algorithm = limiter.AlgorithmTokenBucket
	cfg.Capacity = capacity
	return cfg
}

func TestRunTest_BasicTokenBucket(t *testing.T) {
	vc, lim := newTestLimiter(t, tokenBucketConfig(5))

	result := runTest(vc, lim, []string{"user1"}, 10, 0)

	if len(result.Batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(result.Batches))
	}

	s := result.Summary["user1"]
	if s.TotalRequests != 10 {
		t.Errorf("total requests = %d, want 10", s.TotalRequests)
	}
	if s.Allowed != 5 {
		t.Errorf("allowed = %d, want 5", s.Allowed)
	}
	if s.Denied != 5 {
		t.Errorf("denied = %d, want 5", s.Denied)
	}
}

func TestRunTest_WithFastForward(t *testing.T) {
	vc, lim := newTestLimiter(t, tokenBucketConfig(5))

	result := runTest(vc, lim, []string{"user1"}, 8, time.Minute)

	if len(result.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(result.Batches))
	}
	if result.FastForward != "1m0s" {
		t.Errorf("fast_forward = %q, want %q", result.FastForward, "1m0s")
	}

	// Refills fire during the fast-forward, so each batch sees a full bucket.
	s := result.Summary["user1"]
	if s.Allowed != 10 {
		t.Errorf("total allowed = %d, want 10", s.Allowed)
	}
	if s.Denied != 6 {
		t.Errorf("total denied = %d, want 6", s.Denied)
	}
}

func TestRunTest_LeakyBucketSpacing(t *testing.T) {
	vc, lim := newTestLimiter(t, limiter.DefaultConfig())

	result := runTest(vc, lim, []string{"k"}, 3, 10*time.Second)

	// One admission per batch: the refused calls in batch one pushed the
	// cursor to +3s, which the fast-forward clears.
	s := result.Summary["k"]
	if s.Allowed != 2 || s.Denied != 4 {
		t.Errorf("allowed=%d denied=%d, want 2/4", s.Allowed, s.Denied)
	}
	if got := result.Batches[0].Decisions[1].Decision.RetryAfterMs(); got != 1000 {
		t.Errorf("second call wait = %dms, want 1000", got)
	}
}

func TestRunTest_MultipleKeys(t *testing.T) {
	vc, lim := newTestLimiter(t, tokenBucketConfig(3))

	result := runTest(vc, lim, []string{"user1", "user2"}, 5, 0)

	for _, key := range []string{"user1", "user2"} {
		s := result.Summary[key]
		if s.TotalRequests != 5 {
			t.Errorf("%s: total = %d, want 5", key, s.TotalRequests)
		}
		if s.Allowed != 3 {
			t.Errorf("%s: allowed = %d, want 3", key, s.Allowed)
		}
		if s.Denied != 2 {
			t.Errorf("%s: denied = %d, want 2", key, s.Denied)
		}
	}
}

func TestTestCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"test", "--algorithm", "token_bucket_alarm", "--capacity", "2", "--requests", "3", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("test command failed: %v", err)
	}

	var result TestResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if result.Algorithm != "token_bucket_alarm" {
		t.Errorf("algorithm = %q", result.Algorithm)
	}
	s := result.Summary["203.0.113.1"]
	if s.Allowed != 2 || s.Denied != 1 {
		t.Errorf("summary = %+v, want 2 allowed 1 denied", s)
	}
}

func TestTestCmd_RejectsInvalidLimiter(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"test", "--grace", "100ms"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "grace") {
		t.Fatalf("expected grace validation error, got %v", err)
	}
}
