package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/pkg/tlsconfig"
)

func init() {
	core.RegisterSink("kafka", NewKafkaSinkFromConfig, core.BufferedByDefault())
}

// Config represents Kafka sink configuration values supplied via YAML.
type Config struct {
	MinimumLevel string            `yaml:"minimum_level,omitempty"`
	Brokers      []string          `yaml:"brokers"`
	Topic        string            `yaml:"topic"`
	ClientID     string            `yaml:"client_id,omitempty"`
	Username     string            `yaml:"username,omitempty"`
	Password     string            `yaml:"password,omitempty"`
	TLS          *tlsconfig.Config `yaml:"tls,omitempty"`
	Async        *bool             `yaml:"async,omitempty"`         // default true
	Compression  string            `yaml:"compression,omitempty"`   // gzip, snappy, lz4, zstd
	RequiredAcks string            `yaml:"required_acks,omitempty"` // none, one, all (default one)
	BatchSize    int               `yaml:"batch_size,omitempty"`
	BatchTimeout time.Duration     `yaml:"batch_timeout,omitempty"`
	WriteTimeout time.Duration     `yaml:"write_timeout,omitempty"`
}

// Validate validates the Config
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Topic, validation.Required, validation.Length(1, 249)),
		validation.Field(&c.Compression, validation.In("", "none", "gzip", "snappy", "lz4", "zstd").Error("must be one of none, gzip, snappy, lz4, zstd")),
		validation.Field(&c.RequiredAcks, validation.In("", "none", "one", "all").Error("must be one of none, one, all")),
		validation.Field(&c.BatchSize, validation.Min(0).Error("must not be negative")),
		validation.Field(&c.TLS),
	)
}

// messageWriter is the part of *kafka.Writer the sink uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaSinkFromConfig builds a Kafka sink from generic configuration.
func NewKafkaSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewKafkaSink(name, cfg)
}

// KafkaSink publishes records as JSON messages keyed by logger name, so
// records of one logger stay on one partition in order.
type KafkaSink struct {
	name     string
	level    core.Level
	config   Config
	async    bool
	writer   messageWriter
	dialer   *kafka.Dialer
	counters core.SinkCounters

	closeMutex sync.RWMutex
	closed     bool
}

// NewKafkaSink creates a Kafka sink backed by a kafka-go Writer
func NewKafkaSink(name string, config Config) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, &core.MissingConfigurationError{Sink: name, Field: "brokers"}
	}
	if config.Topic == "" {
		return nil, &core.MissingConfigurationError{Sink: name, Field: "topic"}
	}

	sink, err := newKafkaSink(name, config)
	if err != nil {
		return nil, err
	}

	transport := &kafka.Transport{
		ClientID:    sink.dialer.ClientID,
		DialTimeout: sink.dialer.Timeout,
		TLS:         sink.dialer.TLS,
		SASL:        sink.dialer.SASLMechanism,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: requiredAcks(config.RequiredAcks),
		Compression:  compression(config.Compression),
		Async:        sink.async,
		Transport:    transport,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Printf("[KAFKA:%s] %s", sink.name, fmt.Sprintf(msg, args...))
		}),
	}
	if sink.async {
		writer.Completion = sink.complete
	}
	sink.writer = writer

	log.Printf("[KAFKA:%s] Publishing to topic=%s brokers=%v async=%t", sink.name, config.Topic, config.Brokers, sink.async)
	return sink, nil
}

// newKafkaSink validates config and prepares everything except the writer
func newKafkaSink(name string, config Config) (*KafkaSink, error) {
	if name == "" {
		name = "kafka"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka sink config: %w", err)
	}

	level, err := core.LevelOrDefault(config.MinimumLevel, core.LevelDebug)
	if err != nil {
		return nil, err
	}

	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = time.Second
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		ClientID:  config.ClientID,
	}

	// Configure TLS
	if config.TLS != nil && config.TLS.Enabled {
		host, _, err := net.SplitHostPort(config.Brokers[0])
		if err != nil {
			host = config.Brokers[0]
		}
		tlsConfig, err := config.TLS.ClientFor(host)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		dialer.TLS = tlsConfig
	}

	// Configure SASL
	if config.Username != "" && config.Password != "" {
		dialer.SASLMechanism = plain.Mechanism{
			Username: config.Username,
			Password: config.Password,
		}
	}

	return &KafkaSink{
		name:   name,
		level:  level,
		config: config,
		async:  config.Async == nil || *config.Async,
		dialer: dialer,
	}, nil
}

func (k *KafkaSink) Name() string             { return k.name }
func (k *KafkaSink) MinimumLevel() core.Level { return k.level }

// Stats returns the sink counters
func (k *KafkaSink) Stats() core.SinkStats { return k.counters.Snapshot() }

// Accept publishes a record. In async mode delivery results arrive through
// the writer's completion callback.
func (k *KafkaSink) Accept(record *core.Record) {
	if record.Level() < k.level {
		return
	}
	k.counters.AddAccepted(1)

	msg, err := newMessage(record)
	if err != nil {
		k.complete(nil, err)
		return
	}

	k.closeMutex.RLock()
	defer k.closeMutex.RUnlock()

	if k.closed {
		k.counters.AddDropped(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.config.WriteTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, msg)
	if !k.async || err != nil {
		k.complete([]kafka.Message{msg}, err)
	}
}

// complete records the outcome of a delivery attempt
func (k *KafkaSink) complete(messages []kafka.Message, err error) {
	n := int64(len(messages))
	if n == 0 {
		n = 1
	}
	if err != nil {
		k.counters.AddFailed(n)
		log.Printf("[KAFKA:%s] %v", k.name, &core.SinkWriteError{Sink: k.name, Err: err})
		return
	}
	k.counters.AddWritten(n)
}

// newMessage encodes a record: key is the logger name, value the JSON record
func newMessage(record *core.Record) (kafka.Message, error) {
	value, err := json.Marshal(record)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode record: %w", err)
	}
	return kafka.Message{
		Key:   []byte(record.LoggerName()),
		Value: value,
		Time:  record.Timestamp(),
		Headers: []kafka.Header{
			{Key: "id", Value: []byte(record.ID())},
			{Key: "level", Value: []byte(record.Level().String())},
			{Key: "logger", Value: []byte(record.LoggerName())},
		},
	}, nil
}

// CheckHealth implements core.HealthChecker by dialing the first reachable
// broker
func (k *KafkaSink) CheckHealth(ctx context.Context) error {
	var errs []string
	for _, broker := range k.config.Brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %s", strings.Join(errs, "; "))
}

// Close flushes buffered messages and closes the writer
func (k *KafkaSink) Close() error {
	k.closeMutex.Lock()
	defer k.closeMutex.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true

	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("kafka sink %s close: %w", k.name, err)
	}
	log.Printf("[KAFKA:%s] Stopped", k.name)
	return nil
}

func requiredAcks(value string) kafka.RequiredAcks {
	switch value {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

func compression(value string) kafka.Compression {
	switch value {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}
