package core

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below via errors.Is
var (
	ErrInvalidRecord        = errors.New("invalid log record")
	ErrSinkWrite            = errors.New("sink write failed")
	ErrTransportSend        = errors.New("alert transport send failed")
	ErrUnsupportedSinkType  = errors.New("unsupported sink type")
	ErrMissingConfiguration = errors.New("missing configuration")
)

// InvalidRecordError is returned by NewRecord for malformed log calls
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid log record: %s %s", e.Field, e.Reason)
}

func (e *InvalidRecordError) Is(target error) bool { return target == ErrInvalidRecord }

// SinkWriteError describes a destination that could not be written.
// Sinks count it and never hand it back to the Logger.
type SinkWriteError struct {
	Sink string
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink %s: write failed: %v", e.Sink, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }

// TransportSendError describes an alert batch that could not be delivered
type TransportSendError struct {
	Transport string
	Records   int
	Err       error
}

func (e *TransportSendError) Error() string {
	return fmt.Sprintf("transport %s: failed to send %d record(s): %v", e.Transport, e.Records, e.Err)
}

func (e *TransportSendError) Unwrap() error { return e.Err }

func (e *TransportSendError) Is(target error) bool { return target == ErrTransportSend }

// UnsupportedSinkTypeError is returned by the loader for an unknown sink,
// filter or transport type
type UnsupportedSinkTypeError struct {
	Kind string // "sink", "filter" or "transport"
	Type string
}

func (e *UnsupportedSinkTypeError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "sink"
	}
	return fmt.Sprintf("unsupported %s type %q", kind, e.Type)
}

func (e *UnsupportedSinkTypeError) Is(target error) bool { return target == ErrUnsupportedSinkType }

// MissingConfigurationError is returned when a required option is absent
type MissingConfigurationError struct {
	Sink  string
	Field string
}

func (e *MissingConfigurationError) Error() string {
	if e.Sink == "" {
		return fmt.Sprintf("missing required configuration %q", e.Field)
	}
	return fmt.Sprintf("sink %s: missing required configuration %q", e.Sink, e.Field)
}

func (e *MissingConfigurationError) Is(target error) bool { return target == ErrMissingConfiguration }
