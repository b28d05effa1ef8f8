package analytics

import (
	"io"

	"github.com/redis/go-redis/v9"

	internalanalytics "github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
)

// Record is one analytics data point per handled request.
type Record = internalanalytics.Record

// Sink receives records from an Emitter.
type Sink = internalanalytics.Sink

// SinkFunc adapts a function to a Sink.
type SinkFunc = internalanalytics.SinkFunc

// MultiSink fans records out to several sinks.
type MultiSink = internalanalytics.MultiSink

// Emitter delivers records to a Sink off the request path.
type Emitter = internalanalytics.Emitter

// Recorder keeps records in memory for export and replay.
type Recorder = internalanalytics.Recorder

// StreamSink writes each record as one JSON line.
type StreamSink = internalanalytics.StreamSink

// RedisSink aggregates per-minute counters in Redis.
type RedisSink = internalanalytics.RedisSink

// RedisSinkOption configures a RedisSink.
type RedisSinkOption = internalanalytics.RedisSinkOption

// NewEmitter creates an Emitter with the given queue size.
func NewEmitter(sink Sink, buffer int) *Emitter {
	return internalanalytics.NewEmitter(sink, buffer)
}

// NewRecorder creates a Recorder, optionally streaming to w.
func NewRecorder(w io.Writer) *Recorder {
	return internalanalytics.NewRecorder(w)
}

// NewStreamSink creates a StreamSink writing to w.
func NewStreamSink(w io.Writer) *StreamSink {
	return internalanalytics.NewStreamSink(w)
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(rdb redis.Cmdable, opts ...RedisSinkOption) *RedisSink {
	return internalanalytics.NewRedisSink(rdb, opts...)
}

// LoadJSON reads records from a JSON array or NDJSON stream.
func LoadJSON(r io.Reader) ([]Record, error) {
	return internalanalytics.LoadJSON(r)
}
