package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand  = errors.New("protocol: unknown command")
	ErrValidation      = errors.New("protocol: parameter validation failed")
	ErrSchemaMismatch  = errors.New("protocol: response does not match schema")
	ErrMalformedField  = errors.New("protocol: malformed field")
	ErrOutOfRangeEnum  = errors.New("protocol: enum index out of range")
	ErrMalformedFrame  = errors.New("protocol: malformed frame")
	ErrChecksum        = errors.New("protocol: checksum mismatch")
	ErrInvalidRegistry = errors.New("protocol: invalid registry")
)

// FieldError reports a token that could not be coerced to its declared type.
type FieldError struct {
	Command string
	Index   int
	Label   string
	Token   string
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: command=%s field=%d (%s) token=%q", e.Err, e.Command, e.Index, e.Label, e.Token)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ErrorKind maps an error to a short label suitable for metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrOutOfRangeEnum):
		return "enum_range"
	case errors.Is(err, ErrMalformedField):
		return "malformed_field"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrChecksum):
		return "checksum"
	default:
		return "other"
	}
}
