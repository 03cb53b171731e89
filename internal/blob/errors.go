package blob

import (
	"errors"
	"fmt"
)

// DecodeError reports a payload that could not be unpacked.
type DecodeError struct {
	Offset  int
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("blob decode at byte %d: %s", e.Offset, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// UnsupportedTypeError reports a value Pack cannot serialize.
type UnsupportedTypeError struct {
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("blob: unsupported type %T", e.Value)
}
