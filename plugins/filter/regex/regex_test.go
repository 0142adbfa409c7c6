package regex

import (
	"errors"
	"testing"

	"github.com/yanayukhimuk/Logging/core"
)

func newRecord(t *testing.T, level core.Level, logger, message string, err error) *core.Record {
	t.Helper()
	record, recErr := core.NewRecord(level, logger, message, err, map[string]string{"session": "42"})
	if recErr != nil {
		t.Fatalf("NewRecord failed: %v", recErr)
	}
	return record
}

func TestNewRegexFilter(t *testing.T) {
	filter, err := NewRegexFilter([]string{"error", "warn"}, "include", "message")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.mode != "include" || filter.field != "message" {
		t.Errorf("unexpected filter %+v", filter)
	}
	if len(filter.patterns) != 2 {
		t.Errorf("Expected 2 patterns, got %d", len(filter.patterns))
	}
}

func TestNewRegexFilterDefaults(t *testing.T) {
	filter, err := NewRegexFilter([]string{"test"}, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.mode != "include" {
		t.Errorf("Expected default mode 'include', got %s", filter.mode)
	}
	if filter.field != "message" {
		t.Errorf("Expected default field 'message', got %s", filter.field)
	}
}

func TestNewRegexFilterInvalid(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		mode     string
		field    string
	}{
		{name: "invalid pattern", patterns: []string{"[invalid"}},
		{name: "no patterns"},
		{name: "unknown mode", patterns: []string{"x"}, mode: "keep"},
		{name: "unknown field", patterns: []string{"x"}, field: "host"},
		{name: "empty field key", patterns: []string{"x"}, field: "field."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegexFilter(tt.patterns, tt.mode, tt.field); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestRegexFilterProcess(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		mode     string
		field    string
		record   func(t *testing.T) *core.Record
		expected bool
	}{
		{
			name:     "include - message matches",
			patterns: []string{"Expected", "ERROR"},
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelInformation, "Home", "Expected Warn messages in the logs", nil)
			},
			expected: true,
		},
		{
			name:     "include - message does not match",
			patterns: []string{"error", "ERROR"},
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelInformation, "Home", "Session list is executed", nil)
			},
			expected: false,
		},
		{
			name:     "exclude - message matches",
			patterns: []string{"health"},
			mode:     "exclude",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelDebug, "Web", "health probe", nil)
			},
			expected: false,
		},
		{
			name:     "exclude - message does not match",
			patterns: []string{"health"},
			mode:     "exclude",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelDebug, "Web", "GET /session/1", nil)
			},
			expected: true,
		},
		{
			name:     "level field",
			patterns: []string{"^Error$"},
			field:    "level",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelError, "Ideas", "Some message", nil)
			},
			expected: true,
		},
		{
			name:     "logger field",
			patterns: []string{"^Ideas$"},
			field:    "logger",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelError, "Home", "Some message", nil)
			},
			expected: false,
		},
		{
			name:     "error field",
			patterns: []string{"timeout"},
			field:    "error",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelError, "Ideas", "save failed", errors.New("db timeout"))
			},
			expected: true,
		},
		{
			name:     "all fields",
			patterns: []string{"Error Ideas .*failed"},
			field:    "all",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelError, "Ideas", "Database connection failed", nil)
			},
			expected: true,
		},
		{
			name:     "record field",
			patterns: []string{"^42$"},
			field:    "field.session",
			record: func(t *testing.T) *core.Record {
				return newRecord(t, core.LevelDebug, "Session", "Expected message", nil)
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := NewRegexFilter(tt.patterns, tt.mode, tt.field)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result := filter.Process(tt.record(t)); result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestRegexFilterFromConfig(t *testing.T) {
	filter, err := core.CreateFilter("regex", map[string]any{
		"patterns": []any{"^Expected"},
		"mode":     "exclude",
	})
	if err != nil {
		t.Fatalf("failed to create filter: %v", err)
	}
	if filter.Process(newRecord(t, core.LevelDebug, "Session", "Expected message", nil)) {
		t.Error("matching record should be excluded")
	}
}
