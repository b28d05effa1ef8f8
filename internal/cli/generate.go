package cli

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
)

func newGenerateCmd() *cobra.Command {
	var (
		output   string
		count    int
		keys     int
		duration time.Duration
		pattern  string
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample analytics records for replay",
		Long: `Creates a synthetic analytics file in the format written by
"tollgate serve --record", ready for "tollgate replay".

Patterns:
  steady    Evenly distributed requests
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing request rate`,
		Example: `  tollgate generate --output records.json --count 100 --keys 5
  tollgate generate --output burst.json --count 200 --pattern burst --duration 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch pattern {
			case "steady", "burst", "ramp":
			default:
				return fmt.Errorf("unknown pattern %q, must be one of: steady, burst, ramp", pattern)
			}
			if count <= 0 || keys <= 0 || duration <= 0 {
				return fmt.Errorf("--count, --keys and --duration must be positive")
			}
			if !cmd.Flags().Changed("seed") {
				seed = time.Now().UnixNano()
			}

			records := generateTraffic(rand.New(rand.NewSource(seed)), time.Now().Truncate(time.Second), count, keys, duration, pattern)

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			defer f.Close()

			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			if err := enc.Encode(records); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d records to %s\n", len(records), output)
			fmt.Fprintf(out, "  Keys:     %d\n", keys)
			fmt.Fprintf(out, "  Duration: %s\n", duration)
			fmt.Fprintf(out, "  Pattern:  %s\n", pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "records.json", "output file path")
	cmd.Flags().IntVar(&count, "count", 100, "number of records to generate")
	cmd.Flags().IntVar(&keys, "keys", 3, "number of distinct caller addresses")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Minute, "time span for generated traffic")
	cmd.Flags().StringVar(&pattern, "pattern", "steady", "traffic pattern (steady, burst, ramp)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: time based)")

	return cmd
}

var sampleCountries = []string{"US", "DE", "GB", "JP", "BR"}

func generateTraffic(rng *rand.Rand, start time.Time, count, numKeys int, duration time.Duration, pattern string) []analytics.Record {
	callers := make([]string, numKeys)
	for i := range callers {
		callers[i] = fmt.Sprintf("198.51.100.%d", i+1)
	}

	var offsets []time.Duration
	switch pattern {
	case "burst":
		offsets = burstOffsets(rng, count, duration)
	case "ramp":
		offsets = rampOffsets(count, duration)
	default:
		offsets = steadyOffsets(count, duration)
	}

	records := make([]analytics.Record, len(offsets))
	for i, off := range offsets {
		records[i] = analytics.Record{
			ID:        uuid.New(),
			Timestamp: start.Add(off),
			Status:    http.StatusOK,
			Key:       callers[rng.Intn(len(callers))],
			Method:    http.MethodGet,
			Path:      "/",
			Country:   sampleCountries[rng.Intn(len(sampleCountries))],
		}
	}
	return records
}

func steadyOffsets(count int, dur time.Duration) []time.Duration {
	interval := dur / time.Duration(count)
	out := make([]time.Duration, count)
	for i := range out {
		out[i] = time.Duration(i) * interval
	}
	return out
}

func burstOffsets(rng *rand.Rand, count int, dur time.Duration) []time.Duration {
	const numBursts = 4
	out := make([]time.Duration, 0, count)
	burstSize := count / numBursts
	burstGap := dur / numBursts

	for b := 0; b < numBursts; b++ {
		for i := 0; i < burstSize; i++ {
			// Requests within a burst land within one second.
			out = append(out, time.Duration(b)*burstGap+time.Duration(rng.Intn(1000))*time.Millisecond)
		}
	}
	for len(out) < count {
		out = append(out, time.Duration(rng.Int63n(int64(dur))))
	}
	return out
}

func rampOffsets(count int, dur time.Duration) []time.Duration {
	out := make([]time.Duration, count)
	// Quadratic spacing concentrates requests towards the end.
	for i := range out {
		frac := float64(i) / float64(count)
		out[i] = time.Duration(frac * frac * float64(dur))
	}
	return out
}
