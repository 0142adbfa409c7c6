package prometheussink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yanayukhimuk/Logging/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	// Auto-register this plugin
	core.RegisterSink("prometheus", NewPrometheusSinkFromConfig)
}

// Config represents prometheus sink configuration
type Config struct {
	MinimumLevel     string `yaml:"minimum_level,omitempty"`
	Namespace        string `yaml:"namespace,omitempty"`          // Metric prefix, default "brainstorm"
	Port             int    `yaml:"port,omitempty"`               // Standalone /metrics server, 0 = none
	RuntimeCollector *bool  `yaml:"runtime_collector,omitempty"` // Go and process metrics, default true
}

// NewPrometheusSinkFromConfig creates a prometheus sink from configuration map
func NewPrometheusSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewPrometheusSink(name, cfg)
}

// PrometheusSink counts records per logger and level. Metrics live on a
// private registry exposed by Handler, so several sinks (and tests) never
// collide on the global registry.
type PrometheusSink struct {
	name         string
	level        core.Level
	registry     *prometheus.Registry
	recordsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastRecord   prometheus.Gauge
	counters     core.SinkCounters

	mutex      sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	closed     bool
}

// NewPrometheusSink creates a new Prometheus sink
func NewPrometheusSink(name string, config Config) (*PrometheusSink, error) {
	if name == "" {
		name = "prometheus"
	}
	if config.Namespace == "" {
		config.Namespace = "brainstorm"
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}

	level, err := core.LevelOrDefault(config.MinimumLevel, core.LevelDebug)
	if err != nil {
		return nil, err
	}

	p := &PrometheusSink{
		name:     name,
		level:    level,
		registry: prometheus.NewRegistry(),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "log_records_total",
				Help:      "Total number of log records by logger and level",
			},
			[]string{"logger", "level"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "log_record_errors_total",
				Help:      "Total number of log records carrying an error, by logger",
			},
			[]string{"logger"},
		),
		lastRecord: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "log_last_record_timestamp_seconds",
			Help:      "Unix time of the most recent log record",
		}),
	}

	p.registry.MustRegister(p.recordsTotal, p.errorsTotal, p.lastRecord)
	if config.RuntimeCollector == nil || *config.RuntimeCollector {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if config.Port > 0 {
		if err := p.startMetricsServer(fmt.Sprintf(":%d", config.Port)); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// startMetricsServer binds addr and serves /metrics in the background
func (p *PrometheusSink) startMetricsServer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start metrics server on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	p.listener = ln
	p.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[PROMETHEUS:%s] Starting metrics server on %s", p.name, ln.Addr())
	go func() {
		if err := p.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[PROMETHEUS:%s] Metrics server error: %v", p.name, err)
		}
	}()
	return nil
}

func (p *PrometheusSink) Name() string             { return p.name }
func (p *PrometheusSink) MinimumLevel() core.Level { return p.level }

// Stats returns the sink counters
func (p *PrometheusSink) Stats() core.SinkStats { return p.counters.Snapshot() }

// Accept updates the metrics for a record
func (p *PrometheusSink) Accept(record *core.Record) {
	if record.Level() < p.level {
		return
	}
	p.counters.AddAccepted(1)

	p.recordsTotal.WithLabelValues(record.LoggerName(), record.Level().String()).Inc()
	if record.Err() != nil {
		p.errorsTotal.WithLabelValues(record.LoggerName()).Inc()
	}
	p.lastRecord.Set(float64(record.Timestamp().UnixNano()) / 1e9)

	p.counters.AddWritten(1)
}

// Handler serves the sink's registry in the Prometheus exposition format
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Register adds a collector to the sink's registry
func (p *PrometheusSink) Register(c prometheus.Collector) error {
	return p.registry.Register(c)
}

// Registry returns the sink's private registry
func (p *PrometheusSink) Registry() *prometheus.Registry { return p.registry }

// Addr returns the metrics server address, or nil when none is running
func (p *PrometheusSink) Addr() net.Addr {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Close shuts down the standalone metrics server if one is running
func (p *PrometheusSink) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("prometheus sink %s: %w", p.name, err)
	}
	log.Printf("[PROMETHEUS:%s] Metrics server stopped", p.name)
	return nil
}

// sinkStatsCollector exports the delivery counters of every sink
type sinkStatsCollector struct {
	stats func() map[string]core.SinkStats
	desc  *prometheus.Desc
}

// NewSinkStatsCollector returns a collector exposing
// <namespace>_sink_records_total{sink,outcome} from a stats snapshot
// function such as (*core.Logging).Stats
func NewSinkStatsCollector(namespace string, stats func() map[string]core.SinkStats) prometheus.Collector {
	if namespace == "" {
		namespace = "brainstorm"
	}
	return &sinkStatsCollector{
		stats: stats,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sink", "records_total"),
			"Records handled by each sink, by outcome",
			[]string{"sink", "outcome"}, nil,
		),
	}
}

func (c *sinkStatsCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *sinkStatsCollector) Collect(ch chan<- prometheus.Metric) {
	for name, s := range c.stats() {
		for outcome, value := range map[string]int64{
			"accepted": s.Accepted,
			"written":  s.Written,
			"failed":   s.Failed,
			"dropped":  s.Dropped,
		} {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(value), name, outcome)
		}
	}
}
