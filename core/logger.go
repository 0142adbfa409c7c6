package core

import (
	"fmt"
	"log"
	"maps"
	"sync/atomic"
)

// Field is a contextual key/value pair attached to a record
type Field struct {
	Key   string
	Value string
}

// F builds a Field, formatting value with fmt.Sprint
func F(key string, value any) Field {
	if s, ok := value.(string); ok {
		return Field{Key: key, Value: s}
	}
	return Field{Key: key, Value: fmt.Sprint(value)}
}

// LoggerOption configures a Logger
type LoggerOption func(*Logger)

// WithStrict makes the logger panic on malformed log calls instead of
// counting and discarding them
func WithStrict(strict bool) LoggerOption {
	return func(l *Logger) {
		l.strict = strict
	}
}

// WithFields sets base fields merged into every record
func WithFields(fields ...Field) LoggerOption {
	return func(l *Logger) {
		l.base = mergeFields(l.base, fields)
	}
}

// LoggerStats counts what a logger (and its children) emitted
type LoggerStats struct {
	Emitted    int64 `json:"emitted"`
	Invalid    int64 `json:"invalid"`
	SinkPanics int64 `json:"sink_panics"`
}

type loggerCounters struct {
	emitted    atomic.Int64
	invalid    atomic.Int64
	sinkPanics atomic.Int64
}

// Logger is a named logger forwarding records to its sinks in attachment
// order. It is immutable after construction and safe for concurrent use.
type Logger struct {
	name     string
	sinks    []Sink
	base     map[string]string
	strict   bool
	counters *loggerCounters
}

// NewLogger creates a logger bound to a component name
func NewLogger(name string, sinks []Sink, opts ...LoggerOption) (*Logger, error) {
	if name == "" {
		return nil, &InvalidRecordError{Field: "loggerName", Reason: "must not be empty"}
	}

	l := &Logger{
		name:     name,
		sinks:    append([]Sink(nil), sinks...),
		counters: &loggerCounters{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Name returns the component name stamped on every record
func (l *Logger) Name() string { return l.name }

// Sinks returns the attached sinks in attachment order
func (l *Logger) Sinks() []Sink {
	return append([]Sink(nil), l.sinks...)
}

// Stats returns the logger counters
func (l *Logger) Stats() LoggerStats {
	return LoggerStats{
		Emitted:    l.counters.emitted.Load(),
		Invalid:    l.counters.invalid.Load(),
		SinkPanics: l.counters.sinkPanics.Load(),
	}
}

// With returns a child logger that adds fields to every record. The child
// shares sinks and counters with its parent.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.base = mergeFields(l.base, fields)
	return &child
}

// Debug logs at LevelDebug
func (l *Logger) Debug(message string, fields ...Field) {
	l.log(LevelDebug, message, nil, fields)
}

// Info logs at LevelInformation
func (l *Logger) Info(message string, fields ...Field) {
	l.log(LevelInformation, message, nil, fields)
}

// Warn logs at LevelWarning
func (l *Logger) Warn(message string, fields ...Field) {
	l.log(LevelWarning, message, nil, fields)
}

// Error logs at LevelError; err may be nil
func (l *Logger) Error(message string, err error, fields ...Field) {
	l.log(LevelError, message, err, fields)
}

// Critical logs at LevelCritical; err may be nil
func (l *Logger) Critical(message string, err error, fields ...Field) {
	l.log(LevelCritical, message, err, fields)
}

// Log builds a record and forwards it to every attached sink
func (l *Logger) Log(level Level, message string, err error, fields map[string]string) {
	if l == nil {
		return
	}
	all := l.base
	if len(fields) > 0 {
		all = maps.Clone(l.base)
		if all == nil {
			all = make(map[string]string, len(fields))
		}
		maps.Copy(all, fields)
	}
	l.emit(level, message, err, all)
}

func (l *Logger) log(level Level, message string, err error, fields []Field) {
	if l == nil {
		return
	}
	l.emit(level, message, err, mergeFields(l.base, fields))
}

func (l *Logger) emit(level Level, message string, err error, fields map[string]string) {
	record, recErr := NewRecord(level, l.name, message, err, fields)
	if recErr != nil {
		l.counters.invalid.Add(1)
		if l.strict {
			panic(recErr)
		}
		log.Printf("[LOGGER:%s] Discarding log call: %v", l.name, recErr)
		return
	}

	l.counters.emitted.Add(1)
	for _, sink := range l.sinks {
		if level < sink.MinimumLevel() {
			continue
		}
		l.dispatch(sink, record)
	}
}

// dispatch isolates sinks from each other: a panicking sink is counted and
// the remaining sinks still receive the record
func (l *Logger) dispatch(sink Sink, record *Record) {
	defer func() {
		if r := recover(); r != nil {
			l.counters.sinkPanics.Add(1)
			log.Printf("[LOGGER:%s] Sink %s panicked: %v", l.name, sink.Name(), r)
		}
	}()
	sink.Accept(record)
}

func mergeFields(base map[string]string, fields []Field) map[string]string {
	if len(fields) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(fields))
	maps.Copy(merged, base)
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return merged
}
