package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/config"
	"github.com/SmitUplenchwar2687/Tollgate/internal/storage"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		prefix     string
		outputJSON bool
		stOpts     storageOptions
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show request counters aggregated in Redis",
		Long: `Reads the cumulative per-status counters that "tollgate serve --redis-stats"
keeps in Redis and prints them.`,
		Example: `  tollgate stats --redis-host localhost:6379
  tollgate stats --config tollgate.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("storage") {
				cfg.Storage.Backend = config.BackendRedis
			}
			if err := stOpts.apply(cmd, &cfg.Storage); err != nil {
				return err
			}
			if cfg.Storage.Backend != config.BackendRedis {
				return fmt.Errorf("stats reads counters from redis, got storage backend %q", cfg.Storage.Backend)
			}
			if cmd.Flags().Changed("stats-prefix") {
				cfg.Analytics.RedisPrefix = prefix
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rdb, err := storage.NewRedisClient(ctx, &cfg.Storage.Redis)
			if err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			defer rdb.Close()

			sink := analytics.NewRedisSink(rdb, analytics.WithRedisPrefix(cfg.Analytics.RedisPrefix))
			totals, err := sink.Totals(ctx)
			if err != nil {
				return err
			}
			return writeStatsTotals(cmd.OutOrStdout(), totals, outputJSON)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	cmd.Flags().StringVar(&prefix, "stats-prefix", config.Default().Analytics.RedisPrefix, "redis key prefix of the counters")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output totals as JSON")
	stOpts.addFlags(cmd)

	return cmd
}

type statusTotal struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
	Count  int64  `json:"count"`
}

func writeStatsTotals(out io.Writer, totals map[int]int64, outputJSON bool) error {
	rows := make([]statusTotal, 0, len(totals))
	var sum int64
	for status, n := range totals {
		rows = append(rows, statusTotal{Status: status, Text: http.StatusText(status), Count: n})
		sum += n
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })

	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"statuses": rows,
			"total":    sum,
		})
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}
	fmt.Fprintln(out, "--- Request Totals ---")
	for _, r := range rows {
		fmt.Fprintf(out, "  %d %-22s %d\n", r.Status, r.Text, r.Count)
	}
	fmt.Fprintf(out, "  %-26s %d\n", "Total:", sum)
	return nil
}
