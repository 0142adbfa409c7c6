package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/yanayukhimuk/Logging/core"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func init() {
	// Auto-register this plugin; bulk requests run off the caller's goroutine
	core.RegisterSink("elasticsearch", NewElasticsearchSinkFromConfig, core.BufferedByDefault())
}

// Config represents Elasticsearch sink configuration
type Config struct {
	MinimumLevel  string        `yaml:"minimum_level,omitempty"`
	Addresses     []string      `yaml:"addresses"`                // Elasticsearch addresses
	Username      string        `yaml:"username,omitempty"`       // Basic auth username
	Password      string        `yaml:"password,omitempty"`       // Basic auth password
	APIKey        string        `yaml:"api_key,omitempty"`        // API key authentication
	Index         string        `yaml:"index,omitempty"`          // Index name (supports date templates)
	Timeout       time.Duration `yaml:"timeout,omitempty"`        // Bulk request timeout
	BatchSize     int           `yaml:"batch_size,omitempty"`     // Documents per bulk request
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"` // Longest a document waits for a bulk request
}

// Validate validates the Config after defaults are applied
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addresses, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Index, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.BatchSize, validation.Min(1).Error("must be no less than 1"), validation.Max(10000).Error("must be no greater than 10000")),
		validation.Field(&c.FlushInterval, validation.Min(10*time.Millisecond).Error("must be no less than 10ms")),
		validation.Field(&c.Timeout, validation.Min(time.Millisecond).Error("must be no less than 1ms")),
	)
}

// NewElasticsearchSinkFromConfig creates an Elasticsearch sink from configuration
func NewElasticsearchSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewElasticsearchSink(name, cfg)
}

// ElasticsearchSink indexes records through the bulk API. Each record is
// stored under its own id, so a retried bulk request does not duplicate
// documents.
type ElasticsearchSink struct {
	name       string
	level      core.Level
	config     Config
	client     *elasticsearch.Client
	counters   core.SinkCounters
	batch      []*core.Record
	batchMutex sync.Mutex // guards batch and closed
	flushMutex sync.Mutex
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewElasticsearchSink creates a new Elasticsearch sink
func NewElasticsearchSink(name string, config Config) (*ElasticsearchSink, error) {
	if name == "" {
		name = "elasticsearch"
	}

	// Set defaults
	if len(config.Addresses) == 0 {
		config.Addresses = []string{"http://localhost:9200"}
	}
	if config.Index == "" {
		config.Index = "brainstorm-logs-{yyyy.MM.dd}"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid elasticsearch sink config: %w", err)
	}

	level, err := core.LevelOrDefault(config.MinimumLevel, core.LevelDebug)
	if err != nil {
		return nil, err
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &ElasticsearchSink{
		name:   name,
		level:  level,
		config: config,
		client: client,
		batch:  make([]*core.Record, 0, config.BatchSize),
		ctx:    ctx,
		cancel: cancel,
	}

	// Start background flusher
	sink.wg.Add(1)
	go sink.periodicFlush()

	return sink, nil
}

func (e *ElasticsearchSink) Name() string             { return e.name }
func (e *ElasticsearchSink) MinimumLevel() core.Level { return e.level }

// Stats returns the sink counters
func (e *ElasticsearchSink) Stats() core.SinkStats { return e.counters.Snapshot() }

// Accept adds a record to the current batch, flushing when it is full
func (e *ElasticsearchSink) Accept(record *core.Record) {
	if record.Level() < e.level {
		return
	}
	e.counters.AddAccepted(1)

	e.batchMutex.Lock()
	if e.closed {
		e.batchMutex.Unlock()
		e.counters.AddDropped(1)
		return
	}
	e.batch = append(e.batch, record)
	shouldFlush := len(e.batch) >= e.config.BatchSize
	e.batchMutex.Unlock()

	if shouldFlush {
		e.flush()
	}
}

// Pending returns the number of records waiting for a bulk request
func (e *ElasticsearchSink) Pending() int {
	e.batchMutex.Lock()
	defer e.batchMutex.Unlock()
	return len(e.batch)
}

// flush sends the current batch. Bulk requests are serialized so documents
// reach the cluster in the order they were accepted.
func (e *ElasticsearchSink) flush() {
	e.flushMutex.Lock()
	defer e.flushMutex.Unlock()

	e.batchMutex.Lock()
	if len(e.batch) == 0 {
		e.batchMutex.Unlock()
		return
	}
	batch := e.batch
	e.batch = make([]*core.Record, 0, e.config.BatchSize)
	e.batchMutex.Unlock()

	failed, err := e.bulk(batch)
	if err != nil {
		e.counters.AddFailed(int64(len(batch)))
		log.Printf("[ELASTICSEARCH:%s] %v", e.name, &core.SinkWriteError{Sink: e.name, Err: err})
		return
	}
	if failed > 0 {
		e.counters.AddFailed(int64(failed))
		log.Printf("[ELASTICSEARCH:%s] Bulk request had %d/%d failed document(s)", e.name, failed, len(batch))
	}
	e.counters.AddWritten(int64(len(batch) - failed))
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

// bulk indexes batch and returns the number of rejected documents
func (e *ElasticsearchSink) bulk(batch []*core.Record) (int, error) {
	body, err := e.buildBulkBody(batch)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	req := esapi.BulkRequest{
		Body: bytes.NewReader(body),
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return 0, fmt.Errorf("bulk request failed: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch returned status: %s", res.Status())
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if !bulkResp.Errors {
		return 0, nil
	}

	failed := 0
	for _, item := range bulkResp.Items {
		for _, result := range item {
			if result.Status >= 300 {
				failed++
			}
		}
	}
	return failed, nil
}

// buildBulkBody renders the NDJSON body of a bulk request
func (e *ElasticsearchSink) buildBulkBody(batch []*core.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, record := range batch {
		meta := map[string]any{
			"index": map[string]any{
				"_index": e.resolveIndexName(record.Timestamp()),
				"_id":    record.ID(),
			},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}

		doc := map[string]any{
			"@timestamp": record.Timestamp().Format(time.RFC3339Nano),
			"level":      record.Level().String(),
			"logger":     record.LoggerName(),
			"message":    record.Message(),
		}
		if err := record.Err(); err != nil {
			doc["error"] = err.Error()
		}
		if fields := record.Fields(); len(fields) > 0 {
			doc["fields"] = fields
		}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// periodicFlush flushes pending documents every FlushInterval
func (e *ElasticsearchSink) periodicFlush() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.ctx.Done():
			return
		}
	}
}

// resolveIndexName resolves index name with date templates
// Supports: logs-{yyyy.MM.dd}, logs-{yyyy-MM}, etc.
func (e *ElasticsearchSink) resolveIndexName(t time.Time) string {
	t = t.UTC()
	return strings.NewReplacer(
		"{yyyy.MM.dd}", t.Format("2006.01.02"),
		"{yyyy-MM-dd}", t.Format("2006-01-02"),
		"{yyyy.MM}", t.Format("2006.01"),
		"{yyyy-MM}", t.Format("2006-01"),
		"{yyyy}", t.Format("2006"),
		"{MM}", t.Format("01"),
		"{dd}", t.Format("02"),
	).Replace(e.config.Index)
}

// CheckHealth implements core.HealthChecker
func (e *ElasticsearchSink) CheckHealth(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return fmt.Errorf("elasticsearch health check error: %s", res.String())
	}

	return nil
}

// Close stops the periodic flusher and sends what is left
func (e *ElasticsearchSink) Close() error {
	e.batchMutex.Lock()
	if e.closed {
		e.batchMutex.Unlock()
		return nil
	}
	e.closed = true
	e.batchMutex.Unlock()

	e.cancel()
	e.wg.Wait()

	e.flush()
	return nil
}
