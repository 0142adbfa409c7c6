package alerting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/plugins/sink/console"
)

func init() {
	// Auto-register this plugin
	core.RegisterSink("alerting", NewAlertingSinkFromConfig)
}

// FallbackLoggerName is the logger name stamped on records written to the
// fallback sink when a batch cannot be delivered
const FallbackLoggerName = "alerting"

// Config represents alerting sink configuration. Keys not listed here are
// passed through to the transport.
type Config struct {
	MinimumLevel   string        `yaml:"minimum_level,omitempty"`
	Transport      string        `yaml:"transport"`                 // Transport type: "email", "slack"
	BatchSize      int           `yaml:"batch_size,omitempty"`      // Records per message (default 20)
	BatchWindow    time.Duration `yaml:"batch_window,omitempty"`    // Longest a record waits (default 60s)
	SendTimeout    time.Duration `yaml:"send_timeout,omitempty"`    // Per-send deadline (default 30s)
	OutputTemplate string        `yaml:"output_template,omitempty"` // Body line format
}

// Validate validates the Config after defaults are applied
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BatchSize, validation.Min(1).Error("must be no less than 1"), validation.Max(10000).Error("must be no greater than 10000")),
		validation.Field(&c.BatchWindow, validation.Min(time.Millisecond).Error("must be no less than 1ms"), validation.Max(24*time.Hour).Error("must be no greater than 24h0m0s")),
		validation.Field(&c.SendTimeout, validation.Min(time.Millisecond).Error("must be no less than 1ms"), validation.Max(10*time.Minute).Error("must be no greater than 10m0s")),
	)
}

// DefaultConfig returns the default batching configuration
func DefaultConfig() Config {
	return Config{
		MinimumLevel: core.LevelError.String(),
		BatchSize:    20,
		BatchWindow:  60 * time.Second,
		SendTimeout:  30 * time.Second,
	}
}

// NewAlertingSinkFromConfig creates an alerting sink and its transport from
// configuration map
func NewAlertingSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Transport == "" {
		return nil, &core.MissingConfigurationError{Sink: name, Field: "transport"}
	}

	transport, err := core.CreateTransport(cfg.Transport, config)
	if err != nil {
		var missing *core.MissingConfigurationError
		if errors.As(err, &missing) && missing.Sink == "" {
			missing.Sink = name
		}
		return nil, err
	}

	sink, err := New(name, cfg, transport, nil)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return sink, nil
}

// AlertingSink accumulates qualifying records and sends them through a
// transport as one message per batch. Accept only appends to memory; all
// sends happen on a single background goroutine.
type AlertingSink struct {
	name         string
	level        core.Level
	config       Config
	transport    core.Transport
	fallback     core.Sink
	ownsFallback bool
	template     *core.Template
	counters     core.SinkCounters

	mu      sync.Mutex
	pending []*core.Record
	oldest  time.Time
	outbox  [][]*core.Record
	closed  bool
	stats   Stats

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Stats holds alert delivery counters
type Stats struct {
	Sends        int64 `json:"sends"`
	SendFailures int64 `json:"send_failures"`
	Pending      int   `json:"pending"`
}

// New creates an alerting sink. A nil fallback means failures are reported
// on stderr.
func New(name string, config Config, transport core.Transport, fallback core.Sink) (*AlertingSink, error) {
	if name == "" {
		name = "alerting"
	}
	if transport == nil {
		return nil, &core.MissingConfigurationError{Sink: name, Field: "transport"}
	}

	// Set defaults
	defaults := DefaultConfig()
	if config.MinimumLevel == "" {
		config.MinimumLevel = defaults.MinimumLevel
	}
	if config.BatchSize == 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.BatchWindow == 0 {
		config.BatchWindow = defaults.BatchWindow
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alerting config for %s: %w", name, err)
	}

	level, err := core.ParseLevel(config.MinimumLevel)
	if err != nil {
		return nil, err
	}

	outputTemplate := config.OutputTemplate
	if outputTemplate == "" {
		outputTemplate = core.DefaultOutputTemplate
	}
	tmpl, err := core.ParseTemplate(outputTemplate)
	if err != nil {
		return nil, err
	}

	s := &AlertingSink{
		name:      name,
		level:     level,
		config:    config,
		transport: transport,
		fallback:  fallback,
		template:  tmpl,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	if s.fallback == nil {
		s.fallback = console.NewStderrSink(name + "-fallback")
		s.ownsFallback = true
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

func (s *AlertingSink) Name() string             { return s.name }
func (s *AlertingSink) MinimumLevel() core.Level { return s.level }

// Transport returns the transport alerts are sent through
func (s *AlertingSink) Transport() core.Transport { return s.transport }

// Accept appends a qualifying record to the pending batch. A full batch is
// handed to the background sender.
func (s *AlertingSink) Accept(record *core.Record) {
	if record.Level() < s.level {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.counters.AddDropped(1)
		return
	}
	s.counters.AddAccepted(1)

	s.pending = append(s.pending, record)
	if len(s.pending) == 1 {
		s.oldest = time.Now()
	}
	notify := len(s.pending) == 1
	if len(s.pending) >= s.config.BatchSize {
		s.outbox = append(s.outbox, s.pending)
		s.pending = nil
		notify = true
	}
	s.mu.Unlock()

	if notify {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of records waiting for the next flush
func (s *AlertingSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stats returns the sink counters
func (s *AlertingSink) Stats() core.SinkStats { return s.counters.Snapshot() }

// AlertStats returns delivery counters
func (s *AlertingSink) AlertStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Pending = len(s.pending)
	return stats
}

// CheckHealth reports the transport health when the transport supports it
func (s *AlertingSink) CheckHealth(ctx context.Context) error {
	if checker, ok := s.transport.(core.HealthChecker); ok {
		return checker.CheckHealth(ctx)
	}
	return nil
}

// take removes the batches due for sending. With force the pending batch
// is taken regardless of its age. It also returns when the pending batch
// becomes due (zero when nothing is pending).
func (s *AlertingSink) take(force bool) ([][]*core.Record, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := s.outbox
	s.outbox = nil

	if len(s.pending) > 0 {
		due := s.oldest.Add(s.config.BatchWindow)
		if force || !time.Now().Before(due) {
			batches = append(batches, s.pending)
			s.pending = nil
		} else {
			return batches, due
		}
	}
	return batches, time.Time{}
}

// flushLoop sends handed-off batches and flushes the pending batch once
// its oldest record has waited BatchWindow
func (s *AlertingSink) flushLoop() {
	defer s.wg.Done()

	for {
		batches, due := s.take(false)
		for _, batch := range batches {
			s.send(batch)
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if !due.IsZero() {
			timer = time.NewTimer(time.Until(due))
			timerC = timer.C
		}

		select {
		case <-s.wake:
		case <-timerC:
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			// Final forced flush
			batches, _ := s.take(true)
			for _, batch := range batches {
				s.send(batch)
			}
			return
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// send delivers one batch as one message. The batch is discarded whether
// or not the send succeeds.
func (s *AlertingSink) send(batch []*core.Record) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()

	err := s.transport.Send(ctx, s.buildMessage(batch))

	s.mu.Lock()
	s.stats.Sends++
	if err != nil {
		s.stats.SendFailures++
	}
	s.mu.Unlock()

	if err == nil {
		s.counters.AddWritten(int64(len(batch)))
		return
	}

	s.counters.AddFailed(int64(len(batch)))
	sendErr := &core.TransportSendError{Transport: s.transport.Name(), Records: len(batch), Err: err}
	log.Printf("[ALERTING:%s] %v", s.name, sendErr)
	s.reportFailure(sendErr)
}

// reportFailure writes the delivery failure to the fallback sink
func (s *AlertingSink) reportFailure(sendErr *core.TransportSendError) {
	record, err := core.NewRecord(core.LevelError, FallbackLoggerName,
		fmt.Sprintf("Failed to send %d alert record(s) through %s", sendErr.Records, sendErr.Transport),
		sendErr, map[string]string{"sink": s.name, "transport": sendErr.Transport})
	if err != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ALERTING:%s] Fallback sink panicked: %v", s.name, r)
		}
	}()
	s.fallback.Accept(record)
}

// buildMessage renders a batch into one message
func (s *AlertingSink) buildMessage(batch []*core.Record) core.AlertMessage {
	var body strings.Builder
	for _, record := range batch {
		body.WriteString(s.template.Render(record))
	}

	return core.AlertMessage{
		Subject: Subject(batch),
		Body:    body.String(),
		Records: batch,
	}
}

// Subject returns the default subject line for a batch
func Subject(batch []*core.Record) string {
	if len(batch) == 1 {
		return fmt.Sprintf("[%s] Log alert from %s", batch[0].Level(), batch[0].LoggerName())
	}

	highest := batch[0].Level()
	for _, record := range batch[1:] {
		if record.Level() > highest {
			highest = record.Level()
		}
	}
	return fmt.Sprintf("[%s] Log alerts (%d)", highest, len(batch))
}

// Close forces a final flush of any pending records, stops the background
// sender and closes the transport. It is safe to call more than once.
func (s *AlertingSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	var errs []error
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transport %s: %w", s.transport.Name(), err))
	}
	if s.ownsFallback {
		if err := s.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
