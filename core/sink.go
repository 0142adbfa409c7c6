package core

import (
	"sync/atomic"
)

// Sink is a destination that receives and disposes of log records.
//
// Accept must not return errors to the caller: failures are recovered and
// counted by the sink itself. Records below MinimumLevel are dropped
// silently. Implementations must be safe for concurrent Accept calls.
type Sink interface {
	Name() string
	MinimumLevel() Level
	Accept(record *Record)
	Close() error
}

// StatsReporter is implemented by sinks that expose delivery counters
type StatsReporter interface {
	Stats() SinkStats
}

// Filter decides whether a record reaches the sink it is attached to
type Filter interface {
	Process(record *Record) bool // Returns true if the record should be kept
}

// SinkStats is a snapshot of a sink's delivery counters
type SinkStats struct {
	Accepted int64 `json:"accepted"` // records at or above the threshold
	Written  int64 `json:"written"`  // records handed to the destination
	Failed   int64 `json:"failed"`   // records lost to write or send errors
	Dropped  int64 `json:"dropped"`  // records discarded by filters, overflow or a closed sink
}

// SinkCounters holds the counters behind SinkStats
type SinkCounters struct {
	accepted atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

func (c *SinkCounters) AddAccepted(n int64) { c.accepted.Add(n) }
func (c *SinkCounters) AddWritten(n int64)  { c.written.Add(n) }
func (c *SinkCounters) AddFailed(n int64)   { c.failed.Add(n) }
func (c *SinkCounters) AddDropped(n int64)  { c.dropped.Add(n) }

// Snapshot returns the current values
func (c *SinkCounters) Snapshot() SinkStats {
	return SinkStats{
		Accepted: c.accepted.Load(),
		Written:  c.written.Load(),
		Failed:   c.failed.Load(),
		Dropped:  c.dropped.Load(),
	}
}

// Enabled reports whether a record at level passes a sink's threshold
func Enabled(s Sink, level Level) bool {
	return level >= s.MinimumLevel()
}

// FilteredSink runs a chain of filters before delegating to a sink
type FilteredSink struct {
	inner    Sink
	filters  []Filter
	filtered atomic.Int64
}

// NewFilteredSink wraps inner with filters. With no filters inner is
// returned unchanged.
func NewFilteredSink(inner Sink, filters ...Filter) Sink {
	if len(filters) == 0 {
		return inner
	}
	return &FilteredSink{inner: inner, filters: filters}
}

func (f *FilteredSink) Name() string        { return f.inner.Name() }
func (f *FilteredSink) MinimumLevel() Level { return f.inner.MinimumLevel() }

// Accept applies the threshold first so stateful filters (rate limiting)
// only see qualifying records
func (f *FilteredSink) Accept(record *Record) {
	if record.Level() < f.inner.MinimumLevel() {
		return
	}
	for _, filter := range f.filters {
		if !filter.Process(record) {
			f.filtered.Add(1)
			return
		}
	}
	f.inner.Accept(record)
}

func (f *FilteredSink) Close() error { return f.inner.Close() }

// Unwrap returns the wrapped sink
func (f *FilteredSink) Unwrap() Sink { return f.inner }

// Stats merges the filter drops into the wrapped sink's counters
func (f *FilteredSink) Stats() SinkStats {
	var stats SinkStats
	if reporter, ok := f.inner.(StatsReporter); ok {
		stats = reporter.Stats()
	}
	stats.Dropped += f.filtered.Load()
	return stats
}

// Unwrap follows wrapper sinks (filters, buffers) down to the concrete sink
func Unwrap(s Sink) Sink {
	for {
		w, ok := s.(interface{ Unwrap() Sink })
		if !ok {
			return s
		}
		s = w.Unwrap()
	}
}

// FindSink returns the first sink whose concrete type matches T
func FindSink[T Sink](sinks []Sink) (T, bool) {
	for _, s := range sinks {
		if found, ok := Unwrap(s).(T); ok {
			return found, true
		}
	}
	var zero T
	return zero, false
}
