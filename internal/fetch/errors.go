package fetch

import (
	"errors"
	"fmt"
)

// DecodeError reports a stored value that could not be decoded into its
// attribute's type. It is fatal for the fetch that raised it.
type DecodeError struct {
	// Attr is the attribute being decoded.
	Attr string

	// Row is the zero-based index of the row in the result.
	Row int

	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s in row %d: %v", e.Attr, e.Row, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
