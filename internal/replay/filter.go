package replay

import (
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
)

// Filter defines criteria for selecting analytics records during replay.
type Filter struct {
	Keys     []string  // Only include these caller keys (empty = all)
	Paths    []string  // Only include paths containing one of these (empty = all)
	Statuses []int     // Only include these original statuses (empty = all)
	After    time.Time // Only include records after this time (zero = no limit)
	Before   time.Time // Only include records before this time (zero = no limit)
}

// Match returns true if the record passes the filter.
func (f *Filter) Match(r analytics.Record) bool {
	if len(f.Keys) > 0 && !contains(f.Keys, r.Key) {
		return false
	}
	if len(f.Paths) > 0 && !matchPath(f.Paths, r.Path) {
		return false
	}
	if len(f.Statuses) > 0 && !containsInt(f.Statuses, r.Status) {
		return false
	}
	if !f.After.IsZero() && !r.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(ns []int, n int) bool {
	for _, v := range ns {
		if v == n {
			return true
		}
	}
	return false
}

func matchPath(patterns []string, path string) bool {
	for _, p := range patterns {
		if p == path || strings.Contains(path, p) {
			return true
		}
	}
	return false
}
