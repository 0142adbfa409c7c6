package core

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
)

// Logging holds everything built from a Config: the sinks in declaration
// order and the declared loggers. It is the only owner of the sinks.
type Logging struct {
	Loggers map[string]*Logger
	Sinks   []Sink

	byName  map[string]Sink
	adhoc   map[string]*Logger
	mu      sync.Mutex
	closed  bool
	onClose []func()
}

// Load builds sinks and loggers from cfg. Any failure closes the sinks
// created so far before returning.
func Load(cfg *Config) (*Logging, error) {
	if cfg == nil {
		return nil, &MissingConfigurationError{Field: "sinks"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Logging{
		Loggers: make(map[string]*Logger, len(cfg.Loggers)),
		byName:  make(map[string]Sink, len(cfg.Sinks)),
		adhoc:   make(map[string]*Logger),
	}

	for i, def := range cfg.Sinks {
		sink, err := buildSink(def, sinkName(def, i))
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		l.Sinks = append(l.Sinks, sink)
		l.byName[sink.Name()] = sink
		log.Printf("[LOADER] Sink '%s' (%s) ready, minimum level %s", sink.Name(), def.Type, sink.MinimumLevel())
	}

	for _, def := range cfg.Loggers {
		sinks := l.Sinks
		if len(def.Sinks) > 0 {
			sinks = make([]Sink, 0, len(def.Sinks))
			for _, ref := range def.Sinks {
				sinks = append(sinks, l.byName[ref])
			}
		}

		opts := []LoggerOption{WithStrict(def.Strict)}
		if len(def.Fields) > 0 {
			fields := make([]Field, 0, len(def.Fields))
			for k, v := range def.Fields {
				fields = append(fields, Field{Key: k, Value: v})
			}
			opts = append(opts, WithFields(fields...))
		}

		logger, err := NewLogger(def.Name, sinks, opts...)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		l.Loggers[def.Name] = logger
	}

	return l, nil
}

// buildSink creates one sink and wraps it with its buffer and filters.
// Filters run on the caller's goroutine, in front of the buffer.
func buildSink(def SinkDefinition, name string) (Sink, error) {
	config := maps.Clone(def.Config)
	if config == nil {
		config = make(map[string]any)
	}
	if def.MinimumLevel != "" {
		config["minimum_level"] = def.MinimumLevel
	}

	sink, err := CreateSink(def.Type, name, config)
	if err != nil {
		return nil, err
	}

	bufferConfig := def.Buffer
	if bufferConfig == nil && IsBufferedByDefault(def.Type) {
		defaults := DefaultSinkBufferConfig()
		bufferConfig = &defaults
	}
	if bufferConfig != nil {
		buffered, err := NewSinkBuffer(sink, *bufferConfig)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		sink = buffered
	}

	filters := make([]Filter, 0, len(def.Filters))
	for _, fd := range def.Filters {
		filter, err := CreateFilter(fd.Type, fd.Config)
		if err != nil {
			_ = sink.Close()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		filters = append(filters, filter)
	}

	return NewFilteredSink(sink, filters...), nil
}

// Logger returns the logger declared under name. An undeclared name gets
// a logger attached to every sink, created once and reused.
func (l *Logging) Logger(name string) *Logger {
	if logger, ok := l.Loggers[name]; ok {
		return logger
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if logger, ok := l.adhoc[name]; ok {
		return logger
	}
	logger, err := NewLogger(name, l.Sinks)
	if err != nil {
		log.Printf("[LOADER] Cannot create logger %q: %v", name, err)
		return nil
	}
	l.adhoc[name] = logger
	return logger
}

// Sink returns a sink by name
func (l *Logging) Sink(name string) (Sink, bool) {
	sink, ok := l.byName[name]
	return sink, ok
}

// Stats returns the counters of every sink that reports them, by name
func (l *Logging) Stats() map[string]SinkStats {
	stats := make(map[string]SinkStats, len(l.Sinks))
	for _, sink := range l.Sinks {
		if reporter, ok := sink.(StatsReporter); ok {
			stats[sink.Name()] = reporter.Stats()
		}
	}
	return stats
}

// OnClose registers a function run at the start of Close, before the sinks
// are closed
func (l *Logging) OnClose(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClose = append(l.onClose, fn)
}

// Close closes every sink in reverse declaration order, flushing pending
// alert batches. It is safe to call more than once.
func (l *Logging) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	hooks := l.onClose
	l.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	var errs []error
	for i := len(l.Sinks) - 1; i >= 0; i-- {
		sink := l.Sinks[i]
		if err := sink.Close(); err != nil {
			log.Printf("[LOADER] Error closing sink %s: %v", sink.Name(), err)
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
