package catalog

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// DeclError reports an invalid table declaration.
type DeclError struct {
	Table   string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *DeclError) Error() string {
	where := e.Field
	if e.Table != "" {
		where = "table." + e.Table
		if e.Field != "" {
			where += "." + e.Field
		}
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// IsDeclError reports whether err is or wraps a DeclError.
func IsDeclError(err error) bool {
	var de *DeclError
	return errors.As(err, &de)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &DeclError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
