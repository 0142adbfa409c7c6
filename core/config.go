package core

import (
	"errors"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the logging configuration document
type Config struct {
	Loggers []LoggerDefinition `yaml:"loggers"`
	Sinks   []SinkDefinition   `yaml:"sinks"`
}

// LoggerDefinition declares a named logger. A logger that is not declared
// is still available through Logging.Logger and writes to every sink.
type LoggerDefinition struct {
	Name   string            `yaml:"name"`
	Sinks  []string          `yaml:"sinks,omitempty"`  // Sink names to attach (empty = all)
	Strict bool              `yaml:"strict,omitempty"` // Panic on malformed log calls
	Fields map[string]string `yaml:"fields,omitempty"` // Base fields added to every record
}

// SinkDefinition represents one configured sink
type SinkDefinition struct {
	Type         string             `yaml:"type"`                    // Sink type: "console", "file", "alerting", etc.
	Name         string             `yaml:"name,omitempty"`          // Optional name, defaults to "<type>-<n>"
	MinimumLevel string             `yaml:"minimum_level,omitempty"` // Threshold, type default when empty
	Config       map[string]any     `yaml:"config"`                  // Dynamic configuration for the sink
	Filters      []FilterDefinition `yaml:"filters,omitempty"`       // Filters applied before this sink
	Buffer       *SinkBufferConfig  `yaml:"buffer,omitempty"`        // Async queue, type default when nil
}

// FilterDefinition represents a filter attached to a sink
type FilterDefinition struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// Validate validates the FilterDefinition
func (f FilterDefinition) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Type, validation.Required, validation.Length(1, 50)),
	)
}

// Validate validates the SinkDefinition
func (s SinkDefinition) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.Length(1, 50)),
		validation.Field(&s.Name, validation.Length(0, 100)),
		validation.Field(&s.MinimumLevel, validation.By(validLevelName)),
		validation.Field(&s.Filters),
		validation.Field(&s.Buffer),
	)
}

// Validate validates the LoggerDefinition
func (l LoggerDefinition) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&l.Sinks, validation.Each(validation.Required)),
	)
}

// Validate validates the whole document, including references between
// loggers and sinks. A sink without a type is reported as a
// MissingConfigurationError, as is a document without sinks.
func (c *Config) Validate() error {
	if len(c.Sinks) == 0 {
		return &MissingConfigurationError{Field: "sinks"}
	}
	for i, def := range c.Sinks {
		if def.Type == "" {
			return &MissingConfigurationError{Sink: sinkName(def, i), Field: "type"}
		}
	}

	sinkNames := make(map[string]bool, len(c.Sinks))
	for i, def := range c.Sinks {
		sinkNames[sinkName(def, i)] = true
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Sinks, validation.By(func(value interface{}) error {
			seen := make(map[string]bool)
			for i, def := range c.Sinks {
				name := sinkName(def, i)
				if seen[name] {
					return fmt.Errorf("duplicate sink name %q", name)
				}
				seen[name] = true
			}
			return nil
		})),
		validation.Field(&c.Loggers, validation.By(func(value interface{}) error {
			seen := make(map[string]bool)
			for _, def := range c.Loggers {
				if seen[def.Name] {
					return fmt.Errorf("duplicate logger name %q", def.Name)
				}
				seen[def.Name] = true
				for _, ref := range def.Sinks {
					if !sinkNames[ref] {
						return fmt.Errorf("logger %q references unknown sink %q", def.Name, ref)
					}
				}
			}
			return nil
		})),
	)
}

func validLevelName(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := ParseLevel(s)
	return err
}

// sinkName returns the configured name or "<type>-<n>"
func sinkName(def SinkDefinition, index int) string {
	if def.Name != "" {
		return def.Name
	}
	return fmt.Sprintf("%s-%d", def.Type, index+1)
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates a YAML configuration document
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		var missing *MissingConfigurationError
		if errors.As(err, &missing) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetPluginConfig extracts and unmarshals plugin-specific configuration
func GetPluginConfig(pluginConfig map[string]any, target any) error {
	// Convert map to YAML then unmarshal to target struct
	data, err := yaml.Marshal(pluginConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal plugin config: %w", err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal plugin config: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration writing Information and above to
// the console
func DefaultConfig() *Config {
	return &Config{
		Sinks: []SinkDefinition{
			{
				Type:         "console",
				Name:         "console",
				MinimumLevel: LevelInformation.String(),
				Config: map[string]any{
					"target": "stdout",
				},
			},
		},
	}
}
