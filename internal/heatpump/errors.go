package heatpump

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrReadOnly     = errors.New("field is read-only")
	ErrOutOfRange   = errors.New("value out of range")
	ErrDecode       = errors.New("decode failure")
	ErrTransport    = errors.New("transport error")
)

// FieldError reports a rejected or failed operation on one field.
type FieldError struct {
	Field string
	Err   error  // one of the sentinels above
	Msg   string // optional detail
	Cause error  // underlying transport error, if any
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Field, e.Err)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// RangeError reports a failure for one coalesced register range.
type RangeError struct {
	Range Range
	Err   error
	Cause error
}

func (e *RangeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Range, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Range, e.Err, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *RangeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func fieldErr(name string, sentinel error, format string, args ...interface{}) error {
	return &FieldError{Field: name, Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}
