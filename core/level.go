package core

import (
	"fmt"
	"strings"
)

// Level is the severity of a log record
type Level int

const (
	LevelDebug Level = iota
	LevelInformation
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = [...]string{
	LevelDebug:       "Debug",
	LevelInformation: "Information",
	LevelWarning:     "Warning",
	LevelError:       "Error",
	LevelCritical:    "Critical",
}

var levelShortNames = [...]string{
	LevelDebug:       "DBG",
	LevelInformation: "INF",
	LevelWarning:     "WRN",
	LevelError:       "ERR",
	LevelCritical:    "CRT",
}

// String returns the level name as written by sinks
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Short returns the three-letter upper-case form used by {Level:u3}
func (l Level) Short() string {
	if !l.Valid() {
		return "???"
	}
	return levelShortNames[l]
}

// Valid reports whether l is one of the defined levels
func (l Level) Valid() bool {
	return l >= LevelDebug && l <= LevelCritical
}

// ParseLevel parses a level name. Matching is case-insensitive and accepts
// the common short aliases (info, warn, err, fatal).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "verbose", "trace", "dbg":
		return LevelDebug, nil
	case "information", "info", "inf":
		return LevelInformation, nil
	case "warning", "warn", "wrn":
		return LevelWarning, nil
	case "error", "err":
		return LevelError, nil
	case "critical", "fatal", "crt", "ftl":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LevelOrDefault parses s, returning def when s is empty
func LevelOrDefault(s string, def Level) (Level, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return ParseLevel(s)
}
