package console

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/yanayukhimuk/Logging/core"
)

func init() {
	// Auto-register this plugin
	core.RegisterSink("console", NewConsoleSinkFromConfig, core.BufferedByDefault())
}

// Config represents console sink configuration
type Config struct {
	MinimumLevel   string `yaml:"minimum_level,omitempty"`
	Target         string `yaml:"target,omitempty"`          // "stdout" or "stderr"
	Format         string `yaml:"format,omitempty"`          // "text" or "json"
	OutputTemplate string `yaml:"output_template,omitempty"` // Used by the text format
}

// NewConsoleSinkFromConfig creates a console sink from configuration map
func NewConsoleSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewConsoleSink(name, cfg)
}

// ConsoleSink writes rendered records to stdout/stderr
type ConsoleSink struct {
	name       string
	level      core.Level
	config     Config
	formatter  *core.Formatter
	writer     io.Writer
	counters   core.SinkCounters
	closeMutex sync.Mutex
	closed     bool
}

// NewConsoleSink creates a new console sink
func NewConsoleSink(name string, config Config) (*ConsoleSink, error) {
	// Set defaults
	if config.Target == "" {
		config.Target = "stdout"
	}

	// Validate target
	var writer io.Writer
	switch config.Target {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		return nil, fmt.Errorf("invalid target '%s', must be 'stdout' or 'stderr'", config.Target)
	}

	return NewConsoleSinkWithWriter(name, config, writer)
}

// NewConsoleSinkWithWriter creates a console sink writing to w instead of
// the configured target
func NewConsoleSinkWithWriter(name string, config Config, w io.Writer) (*ConsoleSink, error) {
	if name == "" {
		name = "console"
	}

	level, err := core.LevelOrDefault(config.MinimumLevel, core.LevelDebug)
	if err != nil {
		return nil, err
	}

	formatter, err := core.NewFormatter(config.Format, config.OutputTemplate)
	if err != nil {
		return nil, err
	}

	return &ConsoleSink{
		name:      name,
		level:     level,
		config:    config,
		formatter: formatter,
		writer:    w,
	}, nil
}

// NewStderrSink creates the console sink used as the default fallback for
// alert delivery failures
func NewStderrSink(name string) *ConsoleSink {
	sink, err := NewConsoleSinkWithWriter(name, Config{Target: "stderr"}, os.Stderr)
	if err != nil {
		// Defaults only, cannot fail
		panic(err)
	}
	return sink
}

func (c *ConsoleSink) Name() string             { return c.name }
func (c *ConsoleSink) MinimumLevel() core.Level { return c.level }

// Stats returns the sink counters
func (c *ConsoleSink) Stats() core.SinkStats { return c.counters.Snapshot() }

// Accept writes a record to the console
func (c *ConsoleSink) Accept(record *core.Record) {
	if record.Level() < c.level {
		return
	}
	c.counters.AddAccepted(1)

	output, err := c.formatter.Format(record)
	if err != nil {
		c.fail(err)
		return
	}

	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if c.closed {
		c.counters.AddDropped(1)
		return
	}

	if _, err := c.writer.Write(output); err != nil {
		c.fail(err)
		return
	}
	c.counters.AddWritten(1)
}

func (c *ConsoleSink) fail(err error) {
	c.counters.AddFailed(1)
	log.Printf("[CONSOLE:%s] %v", c.name, &core.SinkWriteError{Sink: c.name, Err: err})
}

// Close closes the console sink (no-op for the underlying stream)
func (c *ConsoleSink) Close() error {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return nil
}
