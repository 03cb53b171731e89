package relation

import (
	"errors"
	"fmt"
)

// HeadingError reports a heading that cannot be resolved: duplicate or
// unknown attributes, invalid types, or join attributes whose types disagree.
type HeadingError struct {
	Attr    string
	Message string
}

func (e *HeadingError) Error() string {
	if e.Attr != "" {
		return fmt.Sprintf("heading: %s: %s", e.Attr, e.Message)
	}
	return "heading: " + e.Message
}

// ProjectionError reports a malformed attribute or rename specification.
type ProjectionError struct {
	Attr    string
	Message string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection: %s: %s", e.Attr, e.Message)
}

// IsProjectionError returns true if err is or wraps a ProjectionError.
func IsProjectionError(err error) bool {
	var pe *ProjectionError
	return errors.As(err, &pe)
}

// IsHeadingError returns true if err is or wraps a HeadingError.
func IsHeadingError(err error) bool {
	var he *HeadingError
	return errors.As(err, &he)
}
