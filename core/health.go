package core

import (
	"context"
	"log"
	"sync"
	"time"
)

// HealthState represents the health status of a sink or transport
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthHealthy
	HealthUnhealthy
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (h HealthState) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// HealthChecker is an optional interface that sinks and transports can
// implement to report whether their destination is reachable
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthStatus is the last known health of one checked component
type HealthStatus struct {
	Name        string      `json:"name"`
	State       HealthState `json:"state"`
	LastError   string      `json:"last_error,omitempty"`
	LastHealthy time.Time   `json:"last_healthy,omitempty"`
	LastChecked time.Time   `json:"last_checked,omitempty"`
}

// HealthMonitorConfig configures periodic health checks
type HealthMonitorConfig struct {
	Interval time.Duration // Time between check rounds (0 = only on demand)
	Timeout  time.Duration // Per-check timeout
}

// DefaultHealthMonitorConfig returns default configuration
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

type monitored struct {
	checker HealthChecker
	status  HealthStatus
}

// HealthMonitor periodically checks every registered HealthChecker
type HealthMonitor struct {
	config  HealthMonitorConfig
	order   []string
	entries map[string]*monitored
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewHealthMonitor creates a monitor for the sinks that implement
// HealthChecker. Wrapper sinks are unwrapped first.
func NewHealthMonitor(config HealthMonitorConfig, sinks []Sink) *HealthMonitor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultHealthMonitorConfig().Timeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &HealthMonitor{
		config:  config,
		entries: make(map[string]*monitored),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, sink := range sinks {
		if checker, ok := Unwrap(sink).(HealthChecker); ok {
			m.Add(sink.Name(), checker)
		}
	}
	return m
}

// Add registers a checker under name, replacing any previous one
func (m *HealthMonitor) Add(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[name]; !exists {
		m.order = append(m.order, name)
	}
	m.entries[name] = &monitored{
		checker: checker,
		status:  HealthStatus{Name: name, State: HealthUnknown},
	}
}

// Start runs an immediate check round and then one every Interval
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	if m.started || m.config.Interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.checkLoop()
}

// checkLoop periodically checks all components
func (m *HealthMonitor) checkLoop() {
	defer m.wg.Done()

	m.CheckNow(m.ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckNow(m.ctx)
		case <-m.ctx.Done():
			return
		}
	}
}

// CheckNow checks every component once
func (m *HealthMonitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	for _, name := range names {
		m.check(ctx, name)
	}
}

func (m *HealthMonitor) check(ctx context.Context, name string) {
	m.mu.RLock()
	entry := m.entries[name]
	m.mu.RUnlock()
	if entry == nil {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()
	err := entry.checker.CheckHealth(checkCtx)

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := entry.status.State
	entry.status.LastChecked = time.Now()
	if err != nil {
		if previous != HealthUnhealthy {
			log.Printf("[HEALTH:%s] Health check failed: %v", name, err)
		}
		entry.status.State = HealthUnhealthy
		entry.status.LastError = err.Error()
		return
	}

	if previous == HealthUnhealthy {
		log.Printf("[HEALTH:%s] Health check passed, destination recovered", name)
	}
	entry.status.State = HealthHealthy
	entry.status.LastError = ""
	entry.status.LastHealthy = entry.status.LastChecked
}

// Status returns the last known status of every component in
// registration order
func (m *HealthMonitor) Status() []HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.order))
	for _, name := range m.order {
		statuses = append(statuses, m.entries[name].status)
	}
	return statuses
}

// Healthy reports whether no component is known to be unhealthy
func (m *HealthMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, entry := range m.entries {
		if entry.status.State == HealthUnhealthy {
			return false
		}
	}
	return true
}

// Close stops periodic checks
func (m *HealthMonitor) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
