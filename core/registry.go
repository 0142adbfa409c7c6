package core

import (
	"fmt"
	"sort"
	"sync"
)

// SinkFactory creates a sink from its type-specific configuration. The
// loader merges the sink's minimum_level into config before calling it.
type SinkFactory func(name string, config map[string]any) (Sink, error)

// FilterFactory creates a filter from configuration
type FilterFactory func(config map[string]any) (Filter, error)

// TransportFactory creates an alert transport from configuration
type TransportFactory func(config map[string]any) (Transport, error)

// SinkOption tunes how the loader treats a registered sink type
type SinkOption func(*sinkRegistration)

// BufferedByDefault marks a sink type whose Accept performs I/O on the
// caller's goroutine. The loader places a SinkBuffer in front of it unless
// the configuration disables buffering.
func BufferedByDefault() SinkOption {
	return func(r *sinkRegistration) {
		r.buffered = true
	}
}

type sinkRegistration struct {
	factory  SinkFactory
	buffered bool
}

// PluginRegistry manages sink, filter and transport factories
type PluginRegistry struct {
	sinks      map[string]sinkRegistration
	filters    map[string]FilterFactory
	transports map[string]TransportFactory
	mu         sync.RWMutex
}

var (
	// Global plugin registry
	registry = &PluginRegistry{
		sinks:      make(map[string]sinkRegistration),
		filters:    make(map[string]FilterFactory),
		transports: make(map[string]TransportFactory),
	}
)

// RegisterSink registers a sink factory
func RegisterSink(name string, factory SinkFactory, opts ...SinkOption) {
	reg := sinkRegistration{factory: factory}
	for _, opt := range opts {
		opt(&reg)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.sinks[name] = reg
}

// RegisterFilter registers a filter factory
func RegisterFilter(name string, factory FilterFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.filters[name] = factory
}

// RegisterTransport registers an alert transport factory
func RegisterTransport(name string, factory TransportFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.transports[name] = factory
}

// CreateSink creates a sink instance
func CreateSink(sinkType, name string, config map[string]any) (Sink, error) {
	registry.mu.RLock()
	reg, exists := registry.sinks[sinkType]
	registry.mu.RUnlock()

	if !exists {
		return nil, &UnsupportedSinkTypeError{Kind: "sink", Type: sinkType}
	}

	sink, err := reg.factory(name, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink %s: %w", name, err)
	}
	return sink, nil
}

// CreateFilter creates a filter instance
func CreateFilter(filterType string, config map[string]any) (Filter, error) {
	registry.mu.RLock()
	factory, exists := registry.filters[filterType]
	registry.mu.RUnlock()

	if !exists {
		return nil, &UnsupportedSinkTypeError{Kind: "filter", Type: filterType}
	}

	filter, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter %s: %w", filterType, err)
	}
	return filter, nil
}

// CreateTransport creates an alert transport instance
func CreateTransport(transportType string, config map[string]any) (Transport, error) {
	registry.mu.RLock()
	factory, exists := registry.transports[transportType]
	registry.mu.RUnlock()

	if !exists {
		return nil, &UnsupportedSinkTypeError{Kind: "transport", Type: transportType}
	}

	transport, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport %s: %w", transportType, err)
	}
	return transport, nil
}

// IsBufferedByDefault reports whether a sink type was registered with
// BufferedByDefault
func IsBufferedByDefault(sinkType string) bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.sinks[sinkType].buffered
}

// ListSinks returns all registered sink type names, sorted
func ListSinks() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return sortedKeys(registry.sinks)
}

// ListFilters returns all registered filter type names, sorted
func ListFilters() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return sortedKeys(registry.filters)
}

// ListTransports returns all registered transport type names, sorted
func ListTransports() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return sortedKeys(registry.transports)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
