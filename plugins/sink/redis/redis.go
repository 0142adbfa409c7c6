package redissink

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/redis/go-redis/v9"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/pkg/tlsconfig"
)

func init() {
	core.RegisterSink("redis", NewRedisSinkFromConfig, core.BufferedByDefault())
}

// Config represents Redis stream sink configuration
type Config struct {
	MinimumLevel string            `yaml:"minimum_level,omitempty"`
	Addr         string            `yaml:"addr,omitempty"` // host:port, default localhost:6379
	Password     string            `yaml:"password,omitempty"`
	DB           int               `yaml:"db,omitempty"`
	Stream       string            `yaml:"stream"`            // Required: stream key
	MaxLen       int64             `yaml:"max_len,omitempty"` // Approximate stream cap, 0 = unbounded
	DialTimeout  time.Duration     `yaml:"dial_timeout,omitempty"`
	WriteTimeout time.Duration     `yaml:"write_timeout,omitempty"`
	PoolSize     int               `yaml:"pool_size,omitempty"`
	MaxRetries   int               `yaml:"max_retries,omitempty"`
	TLS          *tlsconfig.Config `yaml:"tls,omitempty"`
}

// Validate validates the Config after defaults are applied
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Stream, validation.Required, validation.Length(1, 512)),
		validation.Field(&c.DB, validation.Min(0).Error("must not be negative")),
		validation.Field(&c.MaxLen, validation.Min(int64(0)).Error("must not be negative")),
		validation.Field(&c.DialTimeout, validation.Min(time.Millisecond).Error("must be no less than 1ms")),
		validation.Field(&c.WriteTimeout, validation.Min(time.Millisecond).Error("must be no less than 1ms")),
		validation.Field(&c.PoolSize, validation.Min(1).Error("must be no less than 1")),
		validation.Field(&c.TLS),
	)
}

// streamClient is the part of *redis.Client the sink uses
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// NewRedisSinkFromConfig creates a Redis sink from configuration map
func NewRedisSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewRedisSink(name, cfg)
}

// RedisSink appends every record to a Redis stream with XADD
type RedisSink struct {
	name       string
	level      core.Level
	config     Config
	client     streamClient
	counters   core.SinkCounters
	closeMutex sync.RWMutex
	closed     bool
}

// NewRedisSink creates a Redis stream sink
func NewRedisSink(name string, config Config) (*RedisSink, error) {
	if config.Stream == "" {
		return nil, &core.MissingConfigurationError{Sink: name, Field: "stream"}
	}

	sink, err := newRedisSink(name, &config)
	if err != nil {
		return nil, err
	}

	options := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
		MaxRetries:   config.MaxRetries,
	}
	if config.TLS != nil && config.TLS.Enabled {
		tlsConfig, err := config.TLS.NewTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		options.TLSConfig = tlsConfig
	}

	sink.client = redis.NewClient(options)
	return sink, nil
}

// newRedisSink applies defaults and validates config; the client is set by
// the caller
func newRedisSink(name string, config *Config) (*RedisSink, error) {
	if name == "" {
		name = "redis"
	}

	// Set defaults
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 3 * time.Second
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis sink config: %w", err)
	}

	level, err := core.LevelOrDefault(config.MinimumLevel, core.LevelDebug)
	if err != nil {
		return nil, err
	}

	return &RedisSink{name: name, level: level, config: *config}, nil
}

func (r *RedisSink) Name() string             { return r.name }
func (r *RedisSink) MinimumLevel() core.Level { return r.level }

// Stats returns the sink counters
func (r *RedisSink) Stats() core.SinkStats { return r.counters.Snapshot() }

// Accept appends a record to the stream
func (r *RedisSink) Accept(record *core.Record) {
	if record.Level() < r.level {
		return
	}
	r.counters.AddAccepted(1)

	r.closeMutex.RLock()
	defer r.closeMutex.RUnlock()

	if r.closed {
		r.counters.AddDropped(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: r.config.Stream,
		ID:     "*",
		Values: streamValues(record),
	}
	if r.config.MaxLen > 0 {
		args.MaxLen = r.config.MaxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		r.counters.AddFailed(1)
		log.Printf("[REDIS:%s] %v", r.name, &core.SinkWriteError{Sink: r.name, Err: err})
		return
	}
	r.counters.AddWritten(1)
}

// streamValues flattens a record into stream entry fields. Record fields
// are prefixed with "field." so they cannot shadow the fixed keys.
func streamValues(record *core.Record) map[string]any {
	values := map[string]any{
		"id":        record.ID(),
		"timestamp": record.Timestamp().Format(time.RFC3339Nano),
		"level":     record.Level().String(),
		"logger":    record.LoggerName(),
		"message":   record.Message(),
	}
	if err := record.Err(); err != nil {
		values["error"] = err.Error()
	}
	for k, v := range record.Fields() {
		values["field."+k] = v
	}
	return values
}

// CheckHealth implements core.HealthChecker with PING
func (r *RedisSink) CheckHealth(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the client connection pool
func (r *RedisSink) Close() error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
