package populate

import (
	"errors"
	"fmt"

	"github.com/roach88/relpop/internal/ir"
)

// Error is a fatal population error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Table names the table being populated, when known.
	Table string

	// Key is the canonical form of the key being processed, when known.
	Key string

	// Attempts counts MakeTuples calls for Key (retry exhaustion only).
	Attempts int

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes population errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a missing capability, a malformed
	// populate relation or restriction, or an unsupported option.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeRetriesExhausted indicates MakeTuples kept hitting transaction
	// conflicts until the attempt bound.
	ErrCodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != "" {
		msg += fmt.Sprintf(" (table=%s", e.Table)
		if e.Key != "" {
			msg += fmt.Sprintf(", key=%s", e.Key)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeConfiguration
	}
	return false
}

// IsRetriesExhausted returns true if the error reports retry exhaustion.
// Uses errors.As to handle wrapped errors.
func IsRetriesExhausted(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeRetriesExhausted
	}
	return false
}

func configError(table, message string, err error) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message, Table: table, Err: err}
}

// NewRetriesExhaustedError creates the error raised after attempts calls of
// MakeTuples all ended in a transaction conflict.
func NewRetriesExhaustedError(table string, key ir.Key, attempts int, last error) *Error {
	return &Error{
		Code:     ErrCodeRetriesExhausted,
		Message:  fmt.Sprintf("%s.MakeTuples failed after %d attempts, giving up", table, attempts),
		Table:    table,
		Key:      key.String(),
		Attempts: attempts,
		Err:      last,
	}
}

// ErrorRecord is a suppressed MakeTuples failure.
type ErrorRecord struct {
	Key ir.Key
	Err error
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("%s: %v", r.Key, r.Err)
}
