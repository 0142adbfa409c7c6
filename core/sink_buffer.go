package core

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SinkBufferConfig defines the asynchronous queue placed in front of a sink
type SinkBufferConfig struct {
	Enabled        bool          `yaml:"enabled"`         // Enable/disable the queue
	QueueSize      int           `yaml:"queue_size"`      // Max records held in memory
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"` // Longest a caller waits for queue space
	DrainTimeout   time.Duration `yaml:"drain_timeout"`   // Longest Close spends draining the queue
	OverflowPath   string        `yaml:"overflow_path"`   // JSON lines file for records that did not fit (empty = drop)
}

// Validate validates the SinkBufferConfig
func (c SinkBufferConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.QueueSize, validation.Min(1).Error("must be no less than 1"), validation.Max(1000000).Error("must be no greater than 1000000")),
		validation.Field(&c.EnqueueTimeout, validation.Min(time.Duration(0)).Error("must not be negative"), validation.Max(10*time.Second).Error("must be no greater than 10s")),
		validation.Field(&c.DrainTimeout, validation.Min(time.Duration(0)).Error("must not be negative"), validation.Max(time.Hour).Error("must be no greater than 1h0m0s")),
		validation.Field(&c.OverflowPath, validation.Length(0, 500).Error("the length must be no more than 500")),
	)
}

// DefaultSinkBufferConfig returns the default queue configuration
func DefaultSinkBufferConfig() SinkBufferConfig {
	return SinkBufferConfig{
		Enabled:        true,
		QueueSize:      1000,
		EnqueueTimeout: 100 * time.Millisecond,
		DrainTimeout:   10 * time.Second,
	}
}

// BufferStats tracks queue statistics
type BufferStats struct {
	TotalEnqueued   int64 `json:"total_enqueued"`
	TotalDelivered  int64 `json:"total_delivered"`
	TotalOverflowed int64 `json:"total_overflowed"` // written to the overflow file
	TotalDropped    int64 `json:"total_dropped"`    // lost: no overflow file, overflow write failed, or buffer closed
	CurrentQueued   int   `json:"current_queued"`
}

// SinkBuffer decouples a sink from the calling goroutine. A single worker
// delivers records in the order they were queued, so per-logger ordering is
// preserved. Accept waits at most EnqueueTimeout for queue space.
type SinkBuffer struct {
	config       SinkBufferConfig
	inner        Sink
	queue        chan *Record
	stopCh       chan struct{}
	wg           sync.WaitGroup
	closeMu      sync.RWMutex
	closed       bool
	overflowFile *os.File
	overflowMu   sync.Mutex
	stats        BufferStats
	statsMu      sync.Mutex
}

// NewSinkBuffer wraps inner with an asynchronous queue. When the config is
// disabled inner is used directly.
func NewSinkBuffer(inner Sink, config SinkBufferConfig) (Sink, error) {
	if !config.Enabled {
		return inner, nil
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid buffer config for %s: %w", inner.Name(), err)
	}
	defaults := DefaultSinkBufferConfig()
	if config.QueueSize == 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.EnqueueTimeout == 0 {
		config.EnqueueTimeout = defaults.EnqueueTimeout
	}
	if config.DrainTimeout == 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}

	sb := &SinkBuffer{
		config: config,
		inner:  inner,
		queue:  make(chan *Record, config.QueueSize),
		stopCh: make(chan struct{}),
	}

	if config.OverflowPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.OverflowPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create overflow directory: %w", err)
		}
		file, err := os.OpenFile(config.OverflowPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 - path comes from operator configuration
		if err != nil {
			return nil, fmt.Errorf("failed to open overflow file: %w", err)
		}
		sb.overflowFile = file
	}

	sb.wg.Add(1)
	go sb.deliveryWorker()

	return sb, nil
}

func (sb *SinkBuffer) Name() string        { return sb.inner.Name() }
func (sb *SinkBuffer) MinimumLevel() Level { return sb.inner.MinimumLevel() }

// Unwrap returns the buffered sink
func (sb *SinkBuffer) Unwrap() Sink { return sb.inner }

// Accept queues a record for delivery
func (sb *SinkBuffer) Accept(record *Record) {
	if record.Level() < sb.inner.MinimumLevel() {
		return
	}

	sb.closeMu.RLock()
	defer sb.closeMu.RUnlock()

	if sb.closed {
		sb.addDropped()
		return
	}

	select {
	case sb.queue <- record:
		sb.addEnqueued()
		return
	default:
	}

	timer := time.NewTimer(sb.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case sb.queue <- record:
		sb.addEnqueued()
	case <-timer.C:
		// Queue is full or the sink is stuck, spill instead of blocking the caller
		sb.overflow(record)
	}
}

// deliveryWorker hands queued records to the wrapped sink
func (sb *SinkBuffer) deliveryWorker() {
	defer sb.wg.Done()

	for {
		select {
		case record := <-sb.queue:
			sb.deliver(record)
		case <-sb.stopCh:
			return
		}
	}
}

func (sb *SinkBuffer) deliver(record *Record) {
	sb.inner.Accept(record)
	sb.statsMu.Lock()
	sb.stats.TotalDelivered++
	sb.stats.CurrentQueued--
	sb.statsMu.Unlock()
}

// overflow writes a record that could not be queued to the overflow file
func (sb *SinkBuffer) overflow(record *Record) {
	if sb.overflowFile == nil {
		sb.addDropped()
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		log.Printf("[BUFFER:%s] Error marshaling overflow record: %v", sb.inner.Name(), err)
		sb.addDropped()
		return
	}

	sb.overflowMu.Lock()
	_, err = sb.overflowFile.Write(append(data, '\n'))
	sb.overflowMu.Unlock()
	if err != nil {
		log.Printf("[BUFFER:%s] Error writing overflow record: %v", sb.inner.Name(), err)
		sb.addDropped()
		return
	}

	sb.statsMu.Lock()
	sb.stats.TotalOverflowed++
	sb.statsMu.Unlock()
}

func (sb *SinkBuffer) addEnqueued() {
	sb.statsMu.Lock()
	sb.stats.TotalEnqueued++
	sb.stats.CurrentQueued++
	sb.statsMu.Unlock()
}

func (sb *SinkBuffer) addDropped() {
	sb.statsMu.Lock()
	sb.stats.TotalDropped++
	sb.statsMu.Unlock()
}

// BufferStats returns the queue statistics
func (sb *SinkBuffer) BufferStats() BufferStats {
	sb.statsMu.Lock()
	defer sb.statsMu.Unlock()
	return sb.stats
}

// Stats reports the wrapped sink's counters plus records lost in the queue
func (sb *SinkBuffer) Stats() SinkStats {
	var stats SinkStats
	if reporter, ok := sb.inner.(StatsReporter); ok {
		stats = reporter.Stats()
	}
	bs := sb.BufferStats()
	stats.Dropped += bs.TotalDropped + bs.TotalOverflowed
	return stats
}

// Close stops the worker, drains what is left in the queue and closes the
// wrapped sink
func (sb *SinkBuffer) Close() error {
	sb.closeMu.Lock()
	if sb.closed {
		sb.closeMu.Unlock()
		return nil
	}
	sb.closed = true
	sb.closeMu.Unlock()

	close(sb.stopCh)
	sb.wg.Wait()

	// Drain the queue with timeout
	timeout := time.After(sb.config.DrainTimeout)
drainLoop:
	for {
		select {
		case record := <-sb.queue:
			sb.deliver(record)
		case <-timeout:
			log.Printf("[BUFFER:%s] Drain timeout reached, %d record(s) abandoned", sb.inner.Name(), len(sb.queue))
			break drainLoop
		default:
			break drainLoop
		}
	}

	if sb.overflowFile != nil {
		_ = sb.overflowFile.Close()
	}

	return sb.inner.Close()
}
