package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ConflictError reports that a statement lost a lock race with another
// session. Rolling back and retrying the transaction may succeed.
type ConflictError struct {
	// Op names the statement that hit the lock.
	Op   string
	Code sqlite3.ErrNoExtended
	Err  error

	wait time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction conflict in %s: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Culprit names the statement that hit the lock.
func (e *ConflictError) Culprit() string {
	return e.Op
}

// Resolve waits out the conflict backoff. It returns early with the context's
// error if ctx is done first.
func (e *ConflictError) Resolve(ctx context.Context) error {
	if e.wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// classify converts lock contention into a ConflictError and returns any
// other error unchanged.
func classify(op string, err error, wait time.Duration) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &ConflictError{Op: op, Code: se.ExtendedCode, Err: err, wait: wait}
	}
	return err
}

// IsDuplicate reports whether err is a primary-key or unique violation.
func IsDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}
