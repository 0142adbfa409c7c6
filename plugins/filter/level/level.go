package level

import (
	"fmt"

	"github.com/yanayukhimuk/Logging/core"
)

func init() {
	// Auto-register this plugin
	core.RegisterFilter("level", NewLevelFilterFromConfig)
}

// Config represents level filter configuration. Levels applies to every
// logger not listed in Loggers; with Levels empty, unlisted loggers pass.
//
//	levels: [Warning, Error, Critical]
//	loggers:
//	  Session: [Debug, Error]
type Config struct {
	Levels  []string            `yaml:"levels,omitempty"`
	Loggers map[string][]string `yaml:"loggers,omitempty"` // Per-logger allow-lists, keyed by logger name
}

// NewLevelFilterFromConfig creates a level filter from configuration map
func NewLevelFilterFromConfig(config map[string]any) (core.Filter, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewLevelFilter(cfg)
}

type levelSet map[core.Level]bool

// LevelFilter keeps records whose level is in the allow-list of the
// record's logger. Unlike a sink threshold the lists need not be
// contiguous, and each logger can have its own.
type LevelFilter struct {
	defaults  levelSet // nil lets unlisted loggers through
	perLogger map[string]levelSet
}

// NewLevelFilter creates a new level filter. Level names are matched
// case-insensitively; an unknown name is an error.
func NewLevelFilter(config Config) (*LevelFilter, error) {
	if len(config.Levels) == 0 && len(config.Loggers) == 0 {
		return nil, &core.MissingConfigurationError{Field: "levels"}
	}

	f := &LevelFilter{perLogger: make(map[string]levelSet, len(config.Loggers))}
	if len(config.Levels) > 0 {
		set, err := parseLevels(config.Levels)
		if err != nil {
			return nil, err
		}
		f.defaults = set
	}

	for logger, names := range config.Loggers {
		if logger == "" {
			return nil, fmt.Errorf("level filter: logger name cannot be empty")
		}
		if len(names) == 0 {
			return nil, &core.MissingConfigurationError{Field: "loggers." + logger}
		}
		set, err := parseLevels(names)
		if err != nil {
			return nil, fmt.Errorf("level filter: logger %s: %w", logger, err)
		}
		f.perLogger[logger] = set
	}
	return f, nil
}

func parseLevels(names []string) (levelSet, error) {
	set := make(levelSet, len(names))
	for _, name := range names {
		level, err := core.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("level filter: %w", err)
		}
		set[level] = true
	}
	return set, nil
}

// Process determines if a record should be kept based on its logger and
// level
func (f *LevelFilter) Process(record *core.Record) bool {
	if set, ok := f.perLogger[record.LoggerName()]; ok {
		return set[record.Level()]
	}
	if f.defaults == nil {
		return true
	}
	return f.defaults[record.Level()]
}
