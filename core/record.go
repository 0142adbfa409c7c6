package core

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Record is a single structured log entry. It is immutable once created and
// is shared by reference between every sink attached to a logger.
type Record struct {
	id         string
	timestamp  time.Time
	level      Level
	loggerName string
	message    string
	err        error
	fields     map[string]string
}

// NewRecord creates a Record stamped with the current time
func NewRecord(level Level, loggerName, message string, err error, fields map[string]string) (*Record, error) {
	return NewRecordAt(time.Now(), level, loggerName, message, err, fields)
}

// NewRecordAt creates a Record with an explicit timestamp. Timestamps are
// kept at millisecond precision, the resolution text sinks render.
func NewRecordAt(ts time.Time, level Level, loggerName, message string, err error, fields map[string]string) (*Record, error) {
	if loggerName == "" {
		return nil, &InvalidRecordError{Field: "loggerName", Reason: "must not be empty"}
	}
	if message == "" {
		return nil, &InvalidRecordError{Field: "message", Reason: "must not be empty"}
	}
	if !level.Valid() {
		return nil, &InvalidRecordError{Field: "level", Reason: "is out of range"}
	}

	var copied map[string]string
	if len(fields) > 0 {
		copied = maps.Clone(fields)
	}

	return &Record{
		id:         uuid.NewString(),
		timestamp:  ts.Truncate(time.Millisecond),
		level:      level,
		loggerName: loggerName,
		message:    message,
		err:        err,
		fields:     copied,
	}, nil
}

// ID returns the unique record identifier
func (r *Record) ID() string { return r.id }

// Timestamp returns the creation time
func (r *Record) Timestamp() time.Time { return r.timestamp }

// Level returns the record severity
func (r *Record) Level() Level { return r.level }

// LoggerName returns the name of the emitting component
func (r *Record) LoggerName() string { return r.loggerName }

// Message returns the log message
func (r *Record) Message() string { return r.message }

// Err returns the attached error, if any
func (r *Record) Err() error { return r.err }

// Fields returns a copy of the contextual fields
func (r *Record) Fields() map[string]string {
	if len(r.fields) == 0 {
		return map[string]string{}
	}
	return maps.Clone(r.fields)
}

// Field returns a single contextual field
func (r *Record) Field(key string) (string, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// recordJSON is the wire shape used by the network sinks
type recordJSON struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Logger    string            `json:"logger"`
	Message   string            `json:"message"`
	Error     string            `json:"error,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:        r.id,
		Timestamp: r.timestamp,
		Level:     r.level,
		Logger:    r.loggerName,
		Message:   r.message,
		Fields:    r.fields,
	}
	if r.err != nil {
		out.Error = r.err.Error()
	}
	return json.Marshal(out)
}
