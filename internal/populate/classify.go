package populate

import (
	"context"
	"errors"
)

// TransactionError is returned by MakeTuples (or anything it calls) when the
// unit of work lost a race with another session and may succeed if retried.
type TransactionError interface {
	error

	// Culprit names what caused the conflict.
	Culprit() string

	// Resolve takes whatever corrective action the conflict needs before the
	// next attempt.
	Resolve(ctx context.Context) error
}

// Outcome is the populator's decision for a MakeTuples error.
type Outcome int

const (
	// OutcomeFatal means the key failed. Whether the run stops depends on
	// error suppression.
	OutcomeFatal Outcome = iota

	// OutcomeRetry means the transaction should be retried.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Classify decides how the populator handles an error returned by MakeTuples.
// Errors wrapping a TransactionError are retried; context cancellation is
// never retried even if it wraps one.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeFatal
	}
	var te TransactionError
	if errors.As(err, &te) {
		return OutcomeRetry
	}
	return OutcomeFatal
}
