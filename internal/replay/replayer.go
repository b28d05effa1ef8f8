package replay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
)

// Replayer replays recorded traffic through a rate limiter at a configurable
// speed. Time is driven through a VirtualClock, so refill alarms scheduled on
// the same clock fire between records exactly as they would have live.
type Replayer struct {
	records []analytics.Record
	limiter limiter.Limiter
	clock   *clock.VirtualClock
	filter  Filter
	speed   float64 // 1.0 = real-time, 10.0 = 10x, 0 = instant
}

// Result captures the outcome of replaying a single record.
type Result struct {
	Record   analytics.Record `json:"record"`
	Decision limiter.Decision `json:"decision"`
	Time     time.Time        `json:"time"` // virtual time when decision was made
	Err      string           `json:"error,omitempty"`
}

// Summary aggregates replay statistics.
type Summary struct {
	TotalRecords int                   `json:"total_records"`
	Filtered     int                   `json:"filtered"`
	Skipped      int                   `json:"skipped"` // Never reached the limiter originally
	Replayed     int                   `json:"replayed"`
	Allowed      int                   `json:"allowed"`
	Denied       int                   `json:"denied"`
	Errors       int                   `json:"errors"`
	Changed      int                   `json:"changed"`       // Outcome differs from the recorded one
	Duration     time.Duration         `json:"duration"`      // virtual time span
	WallDuration time.Duration         `json:"wall_duration"` // actual wall clock time
	PerKey       map[string]KeySummary `json:"per_key"`
}

// KeySummary has per-key stats.
type KeySummary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// New creates a new replayer.
func New(lim limiter.Limiter, vc *clock.VirtualClock, speed float64, filter *Filter) *Replayer {
	if speed < 0 {
		speed = 0
	}
	r := &Replayer{
		limiter: lim,
		clock:   vc,
		speed:   speed,
	}
	if filter != nil {
		r.filter = *filter
	}
	return r
}

// Load reads analytics records from a JSON array or NDJSON reader.
func (r *Replayer) Load(reader io.Reader) error {
	records, err := analytics.LoadJSON(reader)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	r.records = records
	return nil
}

// LoadRecords sets the records directly.
func (r *Replayer) LoadRecords(records []analytics.Record) {
	r.records = make([]analytics.Record, len(records))
	copy(r.records, records)
}

// Run replays all loaded records through the limiter.
// The callback is called for each replayed record with its decision.
// Returns a summary of the replay.
func (r *Replayer) Run(ctx context.Context, cb func(Result)) (*Summary, error) {
	if len(r.records) == 0 {
		return nil, fmt.Errorf("no records loaded")
	}

	sorted := make([]analytics.Record, len(r.records))
	copy(sorted, r.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	summary := &Summary{
		TotalRecords: len(sorted),
		PerKey:       make(map[string]KeySummary),
	}

	var filtered []analytics.Record
	for _, rec := range sorted {
		if !r.filter.Match(rec) {
			continue
		}
		summary.Filtered++
		if !charged(rec) {
			summary.Skipped++
			continue
		}
		filtered = append(filtered, rec)
	}
	if len(filtered) == 0 {
		return summary, nil
	}

	wallStart := time.Now()
	baseTime := filtered[0].Timestamp
	if r.clock.Now().Before(baseTime) {
		r.clock.Set(baseTime)
	}

	for i, rec := range filtered {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		// Advance virtual clock to match the record's timestamp offset.
		if i > 0 {
			gap := rec.Timestamp.Sub(filtered[i-1].Timestamp)
			if gap > 0 {
				if r.speed > 0 {
					// Sleep for scaled wall-clock time for visual effect.
					scaledGap := time.Duration(float64(gap) / r.speed)
					if scaledGap > time.Millisecond {
						select {
						case <-ctx.Done():
							return summary, ctx.Err()
						case <-time.After(scaledGap):
						}
					}
				}
				r.clock.Advance(gap)
			}
		}

		decision, err := r.limiter.Decide(ctx, rec.Key)
		result := Result{
			Record:   rec,
			Decision: decision,
			Time:     r.clock.Now(),
		}

		summary.Replayed++
		ks := summary.PerKey[rec.Key]
		switch {
		case err != nil:
			result.Err = err.Error()
			summary.Errors++
		case decision.Allowed:
			summary.Allowed++
			ks.Allowed++
		default:
			summary.Denied++
			ks.Denied++
		}
		summary.PerKey[rec.Key] = ks
		if err == nil && changed(rec, decision) {
			summary.Changed++
		}

		if cb != nil {
			cb(result)
		}
	}

	lastTime := filtered[len(filtered)-1].Timestamp
	summary.Duration = lastTime.Sub(baseTime)
	summary.WallDuration = time.Since(wallStart)

	return summary, nil
}

// charged reports whether the original request reached the limiter.
func charged(rec analytics.Record) bool {
	if rec.Key == "" {
		return false
	}
	switch rec.Status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed:
		return false
	}
	return true
}

// changed compares a replayed decision with the recorded outcome. Only
// statuses that map directly to a decision are compared.
func changed(rec analytics.Record, d limiter.Decision) bool {
	switch rec.Status {
	case http.StatusTooManyRequests:
		return d.Allowed
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return !d.Allowed
	}
	return false
}
