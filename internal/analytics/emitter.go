package analytics

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBuffer      = 1024
	defaultSinkTimeout = 5 * time.Second
)

// Emitter hands records to a Sink on a background worker. Emit never blocks
// the caller and never panics: when the buffer is full the record is dropped
// and counted.
type Emitter struct {
	sink    Sink
	timeout time.Duration

	mu     sync.RWMutex // guards ch against send after close
	ch     chan Record
	closed bool

	dropped atomic.Uint64
	doneCh  chan struct{}
}

// NewEmitter starts the worker. buffer <= 0 selects DefaultBuffer.
func NewEmitter(sink Sink, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	e := &Emitter{
		sink:    sink,
		timeout: defaultSinkTimeout,
		ch:      make(chan Record, buffer),
		doneCh:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit queues rec. A missing ID is filled in.
func (e *Emitter) Emit(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("analytics emit panicked: %v", r)
		}
	}()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}

	select {
	case e.ch <- rec:
	default:
		n := e.dropped.Add(1)
		log.Printf("analytics buffer full, dropped record for %s %s (total dropped %d)", rec.Key, rec.Path, n)
	}
}

// Dropped reports how many records were discarded.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops accepting records and waits for queued ones to be written or for
// ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()

	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining analytics: %w", ctx.Err())
	}
}

func (e *Emitter) run() {
	defer close(e.doneCh)
	for rec := range e.ch {
		e.write(rec)
	}
}

func (e *Emitter) write(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("analytics sink panicked for record %s: %v", rec.ID, r)
		}
	}()
	if e.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.sink.Write(ctx, rec); err != nil {
		log.Printf("analytics write failed for record %s: %v", rec.ID, err)
	}
}
