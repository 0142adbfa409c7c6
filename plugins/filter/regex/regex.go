package regex

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/yanayukhimuk/Logging/core"
)

func init() {
	// Auto-register this plugin
	core.RegisterFilter("regex", NewRegexFilterFromConfig)
}

// Config represents regex filter configuration
type Config struct {
	Patterns []string `yaml:"patterns"`
	Mode     string   `yaml:"mode,omitempty"`  // "include" or "exclude"
	Field    string   `yaml:"field,omitempty"` // "message", "logger", "level", "error", "all" or "field.<key>"
}

// Validate validates the Config
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Patterns, validation.Required),
		validation.Field(&c.Mode, validation.In("include", "exclude").Error("must be include or exclude")),
		validation.Field(&c.Field, validation.By(validField)),
	)
}

func validField(value interface{}) error {
	field, _ := value.(string)
	switch field {
	case "message", "logger", "level", "error", "all":
		return nil
	}
	if key, ok := strings.CutPrefix(field, "field."); ok && key != "" {
		return nil
	}
	return fmt.Errorf("unknown field %q", field)
}

// NewRegexFilterFromConfig creates a regex filter from configuration map
func NewRegexFilterFromConfig(config map[string]any) (core.Filter, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewRegexFilter(cfg.Patterns, cfg.Mode, cfg.Field)
}

// RegexFilter keeps or drops records whose text matches any pattern
type RegexFilter struct {
	patterns []*regexp.Regexp
	mode     string
	field    string
}

// NewRegexFilter creates a new regex filter. An invalid pattern is an error.
func NewRegexFilter(patterns []string, mode string, field string) (*RegexFilter, error) {
	// Set defaults
	if mode == "" {
		mode = "include"
	}
	if field == "" {
		field = "message"
	}

	cfg := Config{Patterns: patterns, Mode: mode, Field: field}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid regex filter config: %w", err)
	}

	compiledPatterns := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("regex filter: %w", err)
		}
		compiledPatterns = append(compiledPatterns, compiled)
	}

	return &RegexFilter{
		patterns: compiledPatterns,
		mode:     mode,
		field:    field,
	}, nil
}

// text returns the part of the record the patterns are matched against
func (f *RegexFilter) text(record *core.Record) string {
	switch f.field {
	case "logger":
		return record.LoggerName()
	case "level":
		return record.Level().String()
	case "error":
		if err := record.Err(); err != nil {
			return err.Error()
		}
		return ""
	case "all":
		return record.Level().String() + " " + record.LoggerName() + " " + record.Message()
	case "message":
		return record.Message()
	default:
		value, _ := record.Field(strings.TrimPrefix(f.field, "field."))
		return value
	}
}

// Process determines if a record should be kept based on regex matching
func (f *RegexFilter) Process(record *core.Record) bool {
	text := f.text(record)

	matches := false
	for _, pattern := range f.patterns {
		if pattern.MatchString(text) {
			matches = true
			break
		}
	}

	if f.mode == "exclude" {
		return !matches
	}
	return matches
}
