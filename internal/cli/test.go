package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
)

func newTestCmd() *cobra.Command {
	var (
		configPath  string
		requests    int
		keys        []string
		fastForward time.Duration
		outputJSON  bool
		limOpts     limiterOptions
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run rate limit scenarios on a virtual clock",
		Long: `Runs rate limit checks against a virtual clock, so you can see how a
configuration behaves over minutes or hours in an instant.

The test sends a batch of requests, optionally fast-forwards time (firing any
refills that fall due), then sends another batch to show how limits recover.`,
		Example: `  tollgate test --requests 5
  tollgate test --algorithm token_bucket_alarm --capacity 5 --requests 8 --fast-forward 3s
  tollgate test --cost 1s --grace 3s --keys 203.0.113.1,203.0.113.2 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keys) == 0 {
				keys = []string{"203.0.113.1"}
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			limOpts.apply(cmd, &cfg.Limiter)
			cfg.Limiter.IdleTTL = 0

			vc := clock.NewVirtualClock(time.Now().Truncate(time.Second))
			sched := scheduler.New(vc)
			defer sched.Stop()

			lim, err := createLimiter(cfg.Limiter, vc, sched, nil, "")
			if err != nil {
				return err
			}
			defer lim.Close()

			result := runTest(vc, lim, keys, requests, fastForward)
			result.Algorithm = string(cfg.Limiter.Algorithm)

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			printTestResult(out, &result)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file for limiter settings")
	cmd.Flags().IntVar(&requests, "requests", 5, "number of requests to send per key per batch")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "comma-separated caller keys to test")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "time to fast-forward between batches")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	limOpts.addFlags(cmd)

	return cmd
}

// TestResult captures the full output of a test run.
type TestResult struct {
	Algorithm   string                 `json:"algorithm"`
	FastForward string                 `json:"fast_forward,omitempty"`
	Batches     []BatchResult          `json:"batches"`
	Summary     map[string]TestSummary `json:"summary"`
}

// BatchResult captures results for one batch of requests.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      string           `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord is a single rate limit check result.
type DecisionRecord struct {
	Key      string           `json:"key"`
	Decision limiter.Decision `json:"decision"`
	Err      string           `json:"error,omitempty"`
}

// TestSummary aggregates stats per key.
type TestSummary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Denied        int `json:"denied"`
}

func runTest(vc *clock.VirtualClock, lim limiter.Limiter, keys []string, requests int, fastForward time.Duration) TestResult {
	result := TestResult{
		Summary: make(map[string]TestSummary),
	}

	result.Batches = append(result.Batches, runBatch(vc, lim, keys, requests, "Initial requests", result.Summary))

	if fastForward > 0 {
		vc.Advance(fastForward)
		result.FastForward = fastForward.String()
		label := fmt.Sprintf("After fast-forward %s", fastForward)
		result.Batches = append(result.Batches, runBatch(vc, lim, keys, requests, label, result.Summary))
	}

	return result
}

func runBatch(vc *clock.VirtualClock, lim limiter.Limiter, keys []string, requests int, label string, summary map[string]TestSummary) BatchResult {
	ctx := context.Background()
	batch := BatchResult{
		Label: label,
		Time:  vc.Now().Format(time.RFC3339),
	}
	for i := 0; i < requests; i++ {
		for _, key := range keys {
			d, err := lim.Decide(ctx, key)
			dr := DecisionRecord{Key: key, Decision: d}
			if err != nil {
				dr.Err = err.Error()
			}
			batch.Decisions = append(batch.Decisions, dr)

			s := summary[key]
			s.TotalRequests++
			if d.Allowed {
				s.Allowed++
			} else {
				s.Denied++
			}
			summary[key] = s
		}
	}
	return batch
}

func printTestResult(out io.Writer, r *TestResult) {
	fmt.Fprintf(out, "=== Tollgate Rate Limit Test (%s) ===\n", r.Algorithm)
	fmt.Fprintln(out)

	for _, batch := range r.Batches {
		fmt.Fprintf(out, "--- %s (at %s) ---\n", batch.Label, batch.Time)
		for i, dr := range batch.Decisions {
			status := "ALLOW"
			if !dr.Decision.Allowed {
				status = "DENY "
			}
			fmt.Fprintf(out, "  #%03d [%s] key=%s wait=%dms remaining=%d\n",
				i+1, status, dr.Key, dr.Decision.RetryAfterMs(), dr.Decision.Remaining)
		}
		fmt.Fprintln(out)
	}

	keys := make([]string, 0, len(r.Summary))
	for key := range r.Summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(out, "--- Summary ---")
	for _, key := range keys {
		s := r.Summary[key]
		fmt.Fprintf(out, "  %s: %d total, %d allowed, %d denied\n",
			key, s.TotalRequests, s.Allowed, s.Denied)
	}

	if r.FastForward != "" {
		fmt.Fprintf(out, "\nTime travel: fast-forwarded %s\n", r.FastForward)
	}

	hasDenials := false
	for _, batch := range r.Batches {
		for _, dr := range batch.Decisions {
			if !dr.Decision.Allowed {
				hasDenials = true
			}
		}
	}
	hasRecovery := false
	if len(r.Batches) > 1 {
		for _, dr := range r.Batches[1].Decisions {
			if dr.Decision.Allowed {
				hasRecovery = true
				break
			}
		}
	}
	if hasDenials && hasRecovery {
		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.Repeat("=", 50))
		fmt.Fprintln(out, "Requests were denied, then allowed again after")
		fmt.Fprintln(out, "fast-forwarding the clock.")
		fmt.Fprintln(out, strings.Repeat("=", 50))
	}
}
