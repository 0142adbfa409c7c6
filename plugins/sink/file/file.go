package file

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/yanayukhimuk/Logging/core"
)

func init() {
	// Auto-register this plugin
	core.RegisterSink("file", NewFileSinkFromConfig, core.BufferedByDefault())
}

// Config represents file sink configuration
type Config struct {
	MinimumLevel   string `yaml:"minimum_level,omitempty"`
	Path           string `yaml:"path"`
	Format         string `yaml:"format,omitempty"`           // "text" or "json"
	OutputTemplate string `yaml:"output_template,omitempty"`  // Used by the text format
	ReopenOnRotate *bool  `yaml:"reopen_on_rotate,omitempty"` // Reopen when the file is moved away (default true)
}

// NewFileSinkFromConfig creates a file sink from configuration map
func NewFileSinkFromConfig(name string, config map[string]any) (core.Sink, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewFileSink(name, cfg)
}

// FileSink appends rendered records to a file
type FileSink struct {
	name      string
	level     core.Level
	path      string
	formatter *core.Formatter
	file      *os.File
	writer    *bufio.Writer
	watcher   *fsnotify.Watcher
	counters  core.SinkCounters
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
}

// NewFileSink creates a new file sink
func NewFileSink(name string, config Config) (*FileSink, error) {
	if name == "" {
		name = "file"
	}
	if config.Path == "" {
		return nil, &core.MissingConfigurationError{Sink: name, Field: "path"}
	}

	level, err := core.LevelOrDefault(config.MinimumLevel, core.LevelDebug)
	if err != nil {
		return nil, err
	}

	formatter, err := core.NewFormatter(config.Format, config.OutputTemplate)
	if err != nil {
		return nil, err
	}

	path := filepath.Clean(config.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f := &FileSink{
		name:      name,
		level:     level,
		path:      path,
		formatter: formatter,
	}
	if err := f.open(); err != nil {
		return nil, err
	}

	if config.ReopenOnRotate == nil || *config.ReopenOnRotate {
		if err := f.watch(); err != nil {
			_ = f.file.Close()
			return nil, err
		}
	}

	return f, nil
}

func (f *FileSink) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", f.path, err)
	}
	f.file = file
	f.writer = bufio.NewWriter(file)
	return nil
}

// watch reopens the file when an external rotator renames or removes it.
// The directory is watched so the event survives the file disappearing.
func (f *FileSink) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	f.watcher = watcher

	f.wg.Add(1)
	go f.watchLoop()
	return nil
}

func (f *FileSink) watchLoop() {
	defer f.wg.Done()

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				f.reopen()
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[FILE:%s] Watcher error: %v", f.name, err)
		}
	}
}

func (f *FileSink) reopen() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	_ = f.writer.Flush()
	_ = f.file.Close()
	if err := f.open(); err != nil {
		log.Printf("[FILE:%s] Error reopening after rotation: %v", f.name, err)
		return
	}
	log.Printf("[FILE:%s] Reopened %s after rotation", f.name, f.path)
}

func (f *FileSink) Name() string             { return f.name }
func (f *FileSink) MinimumLevel() core.Level { return f.level }

// Path returns the file being written
func (f *FileSink) Path() string { return f.path }

// Stats returns the sink counters
func (f *FileSink) Stats() core.SinkStats { return f.counters.Snapshot() }

// Accept writes a record to the file
func (f *FileSink) Accept(record *core.Record) {
	if record.Level() < f.level {
		return
	}
	f.counters.AddAccepted(1)

	line, err := f.formatter.Format(record)
	if err != nil {
		f.fail(err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.counters.AddDropped(1)
		return
	}

	if _, err := f.writer.Write(line); err != nil {
		f.fail(fmt.Errorf("failed to write to file: %w", err))
		f.reopenAfterFailure()
		return
	}

	// Flush to ensure data is written
	if err := f.writer.Flush(); err != nil {
		f.fail(fmt.Errorf("failed to flush file: %w", err))
		f.reopenAfterFailure()
		return
	}
	f.counters.AddWritten(1)
}

// reopenAfterFailure replaces the file and writer after a failed write.
// bufio.Writer keeps its first error, so without a fresh writer every later
// record would fail too. Callers hold f.mu; when reopening fails the next
// Accept retries.
func (f *FileSink) reopenAfterFailure() {
	_ = f.file.Close()
	if err := f.open(); err != nil {
		log.Printf("[FILE:%s] Error reopening after write failure: %v", f.name, err)
		return
	}
	log.Printf("[FILE:%s] Reopened %s after write failure", f.name, f.path)
}

func (f *FileSink) fail(err error) {
	f.counters.AddFailed(1)
	log.Printf("[FILE:%s] %v", f.name, &core.SinkWriteError{Sink: f.name, Err: err})
}

// Close stops the watcher and closes the file
func (f *FileSink) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	if f.watcher != nil {
		_ = f.watcher.Close()
		f.wg.Wait()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writer.Flush(); err != nil {
		_ = f.file.Close()
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return f.file.Close()
}
