package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
	"github.com/SmitUplenchwar2687/Tollgate/internal/replay"
)

const replayFixture = `{"timestamp":"2024-01-01T00:00:00Z","status":200,"key":"203.0.113.7","path":"/"}
{"timestamp":"2024-01-01T00:00:00Z","status":429,"key":"203.0.113.7","path":"/"}
{"timestamp":"2024-01-01T00:00:01Z","status":429,"key":"203.0.113.7","path":"/"}
{"timestamp":"2024-01-01T00:00:02Z","status":429,"key":"203.0.113.7","path":"/"}
{"timestamp":"2024-01-01T00:00:04Z","status":200,"key":"203.0.113.7","path":"/"}
{"timestamp":"2024-01-01T00:00:05Z","status":400,"key":"","path":"/"}
`

func writeReplayFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.ndjson")
	if err := os.WriteFile(path, []byte(replayFixture), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRunReplay_MatchesRecordedOutcomes(t *testing.T) {
	var out bytes.Buffer
	err := runReplay(context.Background(), &out, strings.NewReader(replayFixture), replayOptions{
		cfg:        limiter.DefaultConfig(),
		outputJSON: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		Summary replay.Summary `json:"summary"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	s := got.Summary
	if s.Replayed != 5 || s.Skipped != 1 {
		t.Errorf("replayed=%d skipped=%d, want 5/1", s.Replayed, s.Skipped)
	}
	if s.Allowed != 2 || s.Denied != 3 || s.Changed != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestNewReplayCmd_FlagsOverrideConfigFile(t *testing.T) {
	recordsPath := writeReplayFixture(t)
	configPath := filepath.Join(t.TempDir(), "tollgate.json")
	if err := os.WriteFile(configPath, []byte(`{ "limiter": { "cost": "1s", "grace": "1s" } }`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	// A larger grace admits everything in the fixture.
	cmd.SetArgs([]string{"replay", "--file", recordsPath, "--config", configPath, "--grace", "10s"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("replay command failed: %v", err)
	}
	if !strings.Contains(out.String(), "Denied:         0") {
		t.Errorf("output = %s", out.String())
	}
	if !strings.Contains(out.String(), "Changed:        3") {
		t.Errorf("output = %s", out.String())
	}
}

func TestNewReplayCmd_RequiresFile(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --file")
	}
}

func TestNewReplayCmd_RejectsUnknownAlgorithm(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", "--file", writeReplayFixture(t), "--algorithm", "fixed_window"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestNewReplayCmd_ExportReplayedOutcomes(t *testing.T) {
	recordsPath := writeReplayFixture(t)
	exportPath := filepath.Join(t.TempDir(), "what-if.json")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"replay", "--file", recordsPath, "--grace", "10s", "--export", exportPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("replay command failed: %v", err)
	}
	if !strings.Contains(out.String(), "Exported 5 records") {
		t.Errorf("output = %s", out.String())
	}

	records, err := analytics.LoadFile(exportPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("exported %d records, want 5", len(records))
	}
	for i, rec := range records {
		if rec.Status != http.StatusOK || rec.Key != "203.0.113.7" {
			t.Errorf("record %d = status %d key %q, want 200 for 203.0.113.7", i, rec.Status, rec.Key)
		}
	}

	// The export replays cleanly under the limiter that produced it and
	// shows the default limiter's denials as changes.
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		grace   time.Duration
		changed int
	}{
		{"same limiter", 10 * time.Second, 0},
		{"default limiter", time.Second, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := limiter.DefaultConfig()
			cfg.Grace = tt.grace

			var out bytes.Buffer
			err := runReplay(context.Background(), &out, bytes.NewReader(data), replayOptions{cfg: cfg, outputJSON: true})
			if err != nil {
				t.Fatal(err)
			}
			var got struct {
				Summary replay.Summary `json:"summary"`
			}
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if got.Summary.Replayed != 5 || got.Summary.Changed != tt.changed {
				t.Errorf("replayed=%d changed=%d, want 5/%d", got.Summary.Replayed, got.Summary.Changed, tt.changed)
			}
		})
	}
}

func TestReplayedStatus(t *testing.T) {
	tests := []struct {
		name     string
		recorded int
		allowed  bool
		err      string
		want     int
	}{
		{"denied", http.StatusOK, false, "", http.StatusTooManyRequests},
		{"newly allowed", http.StatusTooManyRequests, true, "", http.StatusOK},
		{"gate outcome kept", http.StatusForbidden, true, "", http.StatusForbidden},
		{"limiter error", http.StatusOK, false, "redis down", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := replay.Result{
				Record:   analytics.Record{Status: tt.recorded},
				Decision: limiter.Decision{Allowed: tt.allowed},
				Err:      tt.err,
			}
			if got := replayedStatus(res); got != tt.want {
				t.Errorf("replayedStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
