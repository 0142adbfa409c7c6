package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yanayukhimuk/Logging/core"
)

// mockTransport records every message it is asked to send
type mockTransport struct {
	mu       sync.Mutex
	messages []core.AlertMessage
	err      error
	block    chan struct{}
	closed   bool
}

func (m *mockTransport) Name() string { return "mock" }

func (m *mockTransport) Send(ctx context.Context, msg core.AlertMessage) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) Messages() []core.AlertMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AlertMessage(nil), m.messages...)
}

func (m *mockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// recordingSink collects fallback records
type recordingSink struct {
	mu      sync.Mutex
	records []*core.Record
}

func (r *recordingSink) Name() string             { return "fallback" }
func (r *recordingSink) MinimumLevel() core.Level { return core.LevelDebug }
func (r *recordingSink) Close() error             { return nil }

func (r *recordingSink) Accept(record *core.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingSink) Records() []*core.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.Record(nil), r.records...)
}

func newRecord(t *testing.T, level core.Level, message string) *core.Record {
	t.Helper()
	record, err := core.NewRecord(level, "Ideas", message, nil, nil)
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	return record
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newSink(t *testing.T, config Config, transport core.Transport, fallback core.Sink) *AlertingSink {
	t.Helper()
	sink, err := New("alerts", config, transport, fallback)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sink
}

func TestNew_Defaults(t *testing.T) {
	sink := newSink(t, Config{}, &mockTransport{}, nil)
	defer sink.Close()

	if sink.MinimumLevel() != core.LevelError {
		t.Errorf("Expected Error threshold, got %v", sink.MinimumLevel())
	}
	if sink.config.BatchSize != 20 || sink.config.BatchWindow != 60*time.Second || sink.config.SendTimeout != 30*time.Second {
		t.Errorf("Unexpected defaults %+v", sink.config)
	}
	if !sink.ownsFallback {
		t.Error("Expected a stderr fallback to be created")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		transport core.Transport
	}{
		{name: "nil transport", config: Config{}, transport: nil},
		{name: "negative batch", config: Config{BatchSize: -1}, transport: &mockTransport{}},
		{name: "bad level", config: Config{MinimumLevel: "loud"}, transport: &mockTransport{}},
		{name: "bad template", config: Config{OutputTemplate: " "}, transport: &mockTransport{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("alerts", tt.config, tt.transport, nil); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestAlertingSink_BelowThresholdIsIgnored(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 1}, transport, &recordingSink{})

	sink.Accept(newRecord(t, core.LevelInformation, "Session list is executed"))

	if sink.Pending() != 0 {
		t.Errorf("Expected nothing pending, got %d", sink.Pending())
	}
	_ = sink.Close()
	if len(transport.Messages()) != 0 {
		t.Error("Expected no sends for records below the threshold")
	}
}

func TestAlertingSink_BatchSizeOneSendsImmediately(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 1, BatchWindow: time.Hour}, transport, &recordingSink{})
	defer sink.Close()

	sink.Accept(newRecord(t, core.LevelError, "Expected Error messages in the logs"))

	waitFor(t, func() bool { return len(transport.Messages()) == 1 })

	msg := transport.Messages()[0]
	if len(msg.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(msg.Records))
	}
	if !strings.Contains(msg.Body, "[Error] Expected Error messages in the logs") {
		t.Errorf("Unexpected body %q", msg.Body)
	}
	if msg.Subject != "[Error] Log alert from Ideas" {
		t.Errorf("Unexpected subject %q", msg.Subject)
	}
}

func TestAlertingSink_FlushOnBatchSize(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 20, BatchWindow: time.Hour}, transport, &recordingSink{})
	defer sink.Close()

	for i := 0; i < 25; i++ {
		sink.Accept(newRecord(t, core.LevelError, "flood"))
	}

	waitFor(t, func() bool { return len(transport.Messages()) == 1 })

	if got := len(transport.Messages()[0].Records); got != 20 {
		t.Errorf("Expected 20 records in the flush, got %d", got)
	}
	if sink.Pending() != 5 {
		t.Errorf("Expected 5 pending records, got %d", sink.Pending())
	}

	// No further send until the window elapses
	time.Sleep(50 * time.Millisecond)
	if len(transport.Messages()) != 1 {
		t.Errorf("Expected exactly one send, got %d", len(transport.Messages()))
	}
}

func TestAlertingSink_FlushOnWindow(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 100, BatchWindow: 50 * time.Millisecond}, transport, &recordingSink{})
	defer sink.Close()

	start := time.Now()
	sink.Accept(newRecord(t, core.LevelError, "first"))
	sink.Accept(newRecord(t, core.LevelCritical, "second"))

	waitFor(t, func() bool { return len(transport.Messages()) == 1 })

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Flushed before the window elapsed (%v)", elapsed)
	}
	msg := transport.Messages()[0]
	if len(msg.Records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(msg.Records))
	}
	if msg.Subject != "[Critical] Log alerts (2)" {
		t.Errorf("Unexpected subject %q", msg.Subject)
	}
	if sink.Pending() != 0 {
		t.Errorf("Expected empty batch after flush, got %d", sink.Pending())
	}
}

func TestAlertingSink_CloseFlushesPending(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 20, BatchWindow: time.Hour}, transport, &recordingSink{})

	for i := 0; i < 3; i++ {
		sink.Accept(newRecord(t, core.LevelError, "pending"))
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 || len(messages[0].Records) != 3 {
		t.Fatalf("Expected one final send with 3 records, got %+v", messages)
	}
	if !transport.IsClosed() {
		t.Error("Expected transport to be closed")
	}

	// Second close is a no-op, later records are dropped
	if err := sink.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
	sink.Accept(newRecord(t, core.LevelError, "late"))
	if stats := sink.Stats(); stats.Dropped != 1 {
		t.Errorf("Expected 1 dropped record, got %+v", stats)
	}
}

func TestAlertingSink_NeverSendsEmptyBatch(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 2, BatchWindow: 10 * time.Millisecond}, transport, &recordingSink{})

	sink.Accept(newRecord(t, core.LevelError, "one"))
	sink.Accept(newRecord(t, core.LevelError, "two"))
	waitFor(t, func() bool { return len(transport.Messages()) == 1 })

	time.Sleep(50 * time.Millisecond)
	_ = sink.Close()

	for _, msg := range transport.Messages() {
		if len(msg.Records) == 0 {
			t.Error("Expected no empty sends")
		}
	}
	if len(transport.Messages()) != 1 {
		t.Errorf("Expected exactly one send, got %d", len(transport.Messages()))
	}
}

func TestAlertingSink_SendFailureGoesToFallback(t *testing.T) {
	transport := &mockTransport{err: errors.New("smtp: connection refused")}
	fallback := &recordingSink{}
	sink := newSink(t, Config{BatchSize: 2, BatchWindow: time.Hour}, transport, fallback)

	sink.Accept(newRecord(t, core.LevelError, "one"))
	sink.Accept(newRecord(t, core.LevelError, "two"))

	waitFor(t, func() bool { return len(fallback.Records()) == 1 })

	record := fallback.Records()[0]
	if record.Level() != core.LevelError || record.LoggerName() != FallbackLoggerName {
		t.Errorf("Unexpected fallback record %s/%v", record.LoggerName(), record.Level())
	}
	if !errors.Is(record.Err(), core.ErrTransportSend) {
		t.Errorf("Expected TransportSendError, got %v", record.Err())
	}
	var sendErr *core.TransportSendError
	if !errors.As(record.Err(), &sendErr) || sendErr.Records != 2 {
		t.Errorf("Unexpected send error %v", record.Err())
	}

	// The failed batch is not retried
	if sink.Pending() != 0 {
		t.Errorf("Expected batch to be cleared, got %d pending", sink.Pending())
	}
	_ = sink.Close()

	stats := sink.AlertStats()
	if stats.Sends != 1 || stats.SendFailures != 1 {
		t.Errorf("Unexpected alert stats %+v", stats)
	}
	if sink.Stats().Failed != 2 {
		t.Errorf("Expected 2 failed records, got %+v", sink.Stats())
	}
}

func TestAlertingSink_AcceptDoesNotBlockOnSlowTransport(t *testing.T) {
	transport := &mockTransport{block: make(chan struct{})}
	sink := newSink(t, Config{BatchSize: 1, BatchWindow: time.Hour}, transport, &recordingSink{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		sink.Accept(newRecord(t, core.LevelError, "slow"))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Accept blocked for %v", elapsed)
	}

	close(transport.block)
	_ = sink.Close()

	total := 0
	for _, msg := range transport.Messages() {
		if len(msg.Records) != 1 {
			t.Errorf("Expected one record per message, got %d", len(msg.Records))
		}
		total += len(msg.Records)
	}
	if total != 100 {
		t.Errorf("Expected 100 records delivered, got %d", total)
	}
}

func TestAlertingSink_ConcurrentAccept(t *testing.T) {
	transport := &mockTransport{}
	sink := newSink(t, Config{BatchSize: 7, BatchWindow: time.Hour}, transport, &recordingSink{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				sink.Accept(newRecord(t, core.LevelError, "concurrent"))
			}
		}()
	}
	wg.Wait()
	_ = sink.Close()

	total := 0
	for _, msg := range transport.Messages() {
		if len(msg.Records) == 0 || len(msg.Records) > 7 {
			t.Errorf("Unexpected batch size %d", len(msg.Records))
		}
		total += len(msg.Records)
	}
	if total != 100 {
		t.Errorf("Expected 100 records delivered, got %d", total)
	}
}

func TestNewAlertingSinkFromConfig(t *testing.T) {
	transport := &mockTransport{}
	core.RegisterTransport("alerting-test", func(config map[string]any) (core.Transport, error) {
		if config["recipient"] == nil {
			return nil, &core.MissingConfigurationError{Field: "recipient"}
		}
		return transport, nil
	})

	sink, err := NewAlertingSinkFromConfig("alerts", map[string]any{
		"transport":    "alerting-test",
		"recipient":    "ops@example.com",
		"batch_size":   5,
		"batch_window": "2s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	alerting := sink.(*AlertingSink)
	if alerting.config.BatchSize != 5 || alerting.config.BatchWindow != 2*time.Second {
		t.Errorf("Unexpected config %+v", alerting.config)
	}
	if alerting.Transport() != transport {
		t.Error("Expected the registered transport to be used")
	}

	_, err = NewAlertingSinkFromConfig("alerts", map[string]any{"transport": "alerting-test"})
	var missing *core.MissingConfigurationError
	if !errors.As(err, &missing) || missing.Field != "recipient" || missing.Sink != "alerts" {
		t.Errorf("Expected missing recipient for sink alerts, got %v", err)
	}

	_, err = NewAlertingSinkFromConfig("alerts", map[string]any{})
	if !errors.As(err, &missing) || missing.Field != "transport" {
		t.Errorf("Expected missing transport, got %v", err)
	}

	_, err = NewAlertingSinkFromConfig("alerts", map[string]any{"transport": "carrier-pigeon"})
	if !errors.Is(err, core.ErrUnsupportedSinkType) {
		t.Errorf("Expected unsupported transport, got %v", err)
	}
}

type healthyTransport struct {
	mockTransport
	err error
}

func (h *healthyTransport) CheckHealth(ctx context.Context) error { return h.err }

func TestAlertingSink_CheckHealth(t *testing.T) {
	plain := newSink(t, Config{}, &mockTransport{}, &recordingSink{})
	defer plain.Close()
	if err := plain.CheckHealth(context.Background()); err != nil {
		t.Errorf("Expected nil for transports without health checks, got %v", err)
	}

	checked := newSink(t, Config{}, &healthyTransport{err: errors.New("unreachable")}, &recordingSink{})
	defer checked.Close()
	if err := checked.CheckHealth(context.Background()); err == nil {
		t.Error("Expected transport health error")
	}
}
