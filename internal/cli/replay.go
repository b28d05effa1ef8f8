package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/replay"
	"github.com/SmitUplenchwar2687/Tollgate/internal/scheduler"
)

func newReplayCmd() *cobra.Command {
	var (
		file       string
		configPath string
		speed      float64
		keys       []string
		paths      []string
		statuses   []int
		outputJSON bool
		export     string
		limOpts    limiterOptions
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded analytics through a rate limiter",
		Long: `Replays a recorded analytics file (JSON array or NDJSON, as written by
"tollgate serve --record") through a freshly configured in-memory limiter.

Records are replayed in timestamp order on a virtual clock, so refills fire
between records exactly as they would have live, at any speed you choose.
Requests that never reached the limiter (no caller key, 400, 404, 405) are
skipped. The summary counts how many outcomes differ from the recorded ones.

--export writes the replayed records with their new statuses as a JSON array,
which replay accepts as input in turn.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  tollgate replay --file records.ndjson
  tollgate replay --file records.ndjson --algorithm token_bucket_alarm --capacity 10
  tollgate replay --file records.ndjson --config tollgate.json --keys 203.0.113.7
  tollgate replay --file records.ndjson --speed 0 --json
  tollgate replay --file records.ndjson --grace 5s --export what-if.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			limOpts.apply(cmd, &cfg.Limiter)
			if err := cfg.Limiter.Validate(); err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()

			return runReplay(cmd.Context(), cmd.OutOrStdout(), f, replayOptions{
				cfg:        cfg.Limiter,
				speed:      speed,
				filter:     replay.Filter{Keys: keys, Paths: paths, Statuses: statuses},
				outputJSON: outputJSON,
				export:     export,
				label:      file,
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to recorded analytics file (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file for limiter settings")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "filter by caller keys (comma-separated)")
	cmd.Flags().StringSliceVar(&paths, "paths", nil, "filter by request paths (comma-separated)")
	cmd.Flags().IntSliceVar(&statuses, "statuses", nil, "filter by recorded status codes (comma-separated)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	cmd.Flags().StringVar(&export, "export", "", "write replayed records with their new statuses to this JSON file")
	limOpts.addFlags(cmd)

	return cmd
}

type replayOptions struct {
	cfg        limiter.Config
	speed      float64
	filter     replay.Filter
	outputJSON bool
	export     string
	label      string
}

func runReplay(ctx context.Context, out io.Writer, in io.Reader, o replayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := analytics.LoadJSON(in)
	if err != nil {
		return err
	}

	// Start the virtual clock at the first record so refill alarms line up
	// with the recorded timeline.
	start := time.Now().Truncate(time.Second)
	if len(records) > 0 {
		start = records[0].Timestamp
		for _, rec := range records[1:] {
			if rec.Timestamp.Before(start) {
				start = rec.Timestamp
			}
		}
	}
	vc := clock.NewVirtualClock(start)
	sched := scheduler.New(vc)
	defer sched.Stop()

	lim, err := createLimiter(o.cfg, vc, sched, nil, "")
	if err != nil {
		return err
	}
	defer lim.Close()

	r := replay.New(lim, vc, o.speed, &o.filter)
	r.LoadRecords(records)

	if !o.outputJSON {
		fmt.Fprintf(out, "Replaying %s with %s at %.0fx speed...\n\n", o.label, o.cfg.Algorithm, o.speed)
	}

	var exported *analytics.Recorder
	if o.export != "" {
		exported = analytics.NewRecorder(nil)
	}

	var results []replay.Result
	summary, err := r.Run(ctx, func(res replay.Result) {
		if exported != nil {
			rec := res.Record
			rec.Status = replayedStatus(res)
			exported.Write(ctx, rec)
		}
		if o.outputJSON {
			results = append(results, res)
			return
		}
		status := "ALLOW"
		switch {
		case res.Err != "":
			status = "ERROR"
		case !res.Decision.Allowed:
			status = "DENY "
		}
		fmt.Fprintf(out, "  [%s] %s key=%s recorded=%d wait=%dms\n",
			status,
			res.Record.Timestamp.Format("15:04:05.000"),
			res.Record.Key,
			res.Record.Status,
			res.Decision.RetryAfterMs())
	})
	if err != nil {
		return err
	}

	if exported != nil {
		if err := exported.ExportFile(o.export); err != nil {
			return fmt.Errorf("exporting replayed records: %w", err)
		}
	}

	if o.outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"results": results,
			"summary": summary,
		})
	}

	printReplaySummary(out, summary)
	if exported != nil {
		fmt.Fprintf(out, "\nExported %d records to %s\n", exported.Len(), o.export)
	}
	return nil
}

// replayedStatus is the status the server would have answered with under the
// replayed limiter.
func replayedStatus(res replay.Result) int {
	switch {
	case res.Err != "":
		return http.StatusBadGateway
	case !res.Decision.Allowed:
		return http.StatusTooManyRequests
	case res.Record.Status == http.StatusTooManyRequests:
		return http.StatusOK
	default:
		return res.Record.Status
	}
}

func printReplaySummary(out io.Writer, summary *replay.Summary) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "--- Replay Summary ---")
	fmt.Fprintf(out, "  Total records:  %d\n", summary.TotalRecords)
	fmt.Fprintf(out, "  Filtered:       %d\n", summary.Filtered)
	fmt.Fprintf(out, "  Skipped:        %d\n", summary.Skipped)
	fmt.Fprintf(out, "  Replayed:       %d\n", summary.Replayed)
	fmt.Fprintf(out, "  Allowed:        %d\n", summary.Allowed)
	fmt.Fprintf(out, "  Denied:         %d\n", summary.Denied)
	fmt.Fprintf(out, "  Changed:        %d\n", summary.Changed)
	fmt.Fprintf(out, "  Virtual time:   %s\n", summary.Duration)
	fmt.Fprintf(out, "  Wall time:      %s\n", summary.WallDuration.Round(time.Millisecond))

	if len(summary.PerKey) > 1 {
		keys := make([]string, 0, len(summary.PerKey))
		for key := range summary.PerKey {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Per key:")
		for _, key := range keys {
			ks := summary.PerKey[key]
			fmt.Fprintf(out, "    %s: %d allowed, %d denied\n", key, ks.Allowed, ks.Denied)
		}
	}

	if summary.Denied > 0 && summary.Allowed > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.Repeat("=", 50))
		denyRate := float64(summary.Denied) / float64(summary.Replayed) * 100
		fmt.Fprintf(out, "Deny rate: %.1f%% (%d/%d requests denied)\n", denyRate, summary.Denied, summary.Replayed)
		fmt.Fprintln(out, strings.Repeat("=", 50))
	}
}
