// Package analytics carries one record per handled request to any number of
// sinks without ever slowing down or failing the request itself.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is the analytics data point written for every request. Status is the
// numeric field; the remaining fields are tags.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Key       string    `json:"key"` // Caller key, usually the client IP
	Version   string    `json:"version,omitempty"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path"`

	// Enrichment, set only on successful requests.
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
	Org     string `json:"org,omitempty"`
	Colo    string `json:"colo,omitempty"`
}

// Sink receives analytics records. Write may be called from a single worker
// goroutine; implementations shared elsewhere must still be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// MultiSink writes every record to each sink in order. A failing sink does
// not stop the others; their errors are joined.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
