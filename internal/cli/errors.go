package cli

import (
	"fmt"

	"github.com/roach88/relpop/internal/blob"
	"github.com/roach88/relpop/internal/catalog"
	"github.com/roach88/relpop/internal/fetch"
	"github.com/roach88/relpop/internal/populate"
	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
)

// Error codes reported in CLIError.Code. E0xx cover catalog loading,
// E2xx the database session and E3xx population, fetch and scenarios.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeDeclaration = "E006" // Invalid table declaration

	// Session errors
	ErrCodeDatabase     = "E201" // Database open or query failed
	ErrCodeRows         = "E202" // Row file unreadable or invalid
	ErrCodeUnknownTable = "E203" // Table not in the catalog
	ErrCodeArgument     = "E204" // Bad restriction, projection or ordering

	// Population and fetch errors
	ErrCodeConfiguration    = "E301"
	ErrCodeRetriesExhausted = "E302"
	ErrCodeMakeFailed       = "E303"
	ErrCodeDecode           = "E304"
	ErrCodeScenarioFailed   = "E305"
)

// codeFor maps an error from the library packages to an error code.
func codeFor(err error) string {
	switch {
	case catalog.IsDeclError(err):
		return ErrCodeDeclaration
	case populate.IsConfigError(err):
		return ErrCodeConfiguration
	case populate.IsRetriesExhausted(err):
		return ErrCodeRetriesExhausted
	case fetch.IsDecodeError(err), blob.IsDecodeError(err):
		return ErrCodeDecode
	case relation.IsProjectionError(err), relation.IsHeadingError(err):
		return ErrCodeArgument
	case store.IsConflict(err):
		return ErrCodeDatabase
	default:
		return ErrCodeGeneric
	}
}

// fail reports the error through the formatter and returns it as an
// ExitError carrying exitCode.
func fail(f *OutputFormatter, exitCode int, code, message string, err error) error {
	text := message
	if err != nil {
		text = fmt.Sprintf("%s: %v", message, err)
	}
	if outErr := f.Error(code, text, nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCode, message, err)
}
