package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrTransactionOpen is returned by StartTransaction when one is already open.
var ErrTransactionOpen = errors.New("transaction already open")

// ErrNoTransaction is returned by CommitTransaction without an open transaction.
var ErrNoTransaction = errors.New("no open transaction")

// StartTransaction opens a transaction. Subsequent Query and Exec calls run
// inside it until it is committed or cancelled.
func (s *Store) StartTransaction(ctx context.Context) error {
	if s.tx != nil {
		return ErrTransactionOpen
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", classify("begin", err, s.backoff))
	}
	s.tx = tx
	return nil
}

// CommitTransaction commits the open transaction.
// The transaction is closed whether or not the commit succeeds.
func (s *Store) CommitTransaction(ctx context.Context) error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify("commit", err, s.backoff))
	}
	return nil
}

// CancelTransaction rolls back the open transaction, if any.
// Calling it without an open transaction is a no-op.
func (s *Store) CancelTransaction(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool {
	return s.tx != nil
}

// Query runs a query inside the open transaction, or directly when none is
// open. Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if s.tx != nil {
		rows, err = s.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, classify("query", err, s.backoff)
	}
	return rows, nil
}

// Exec runs a statement inside the open transaction, or directly when none
// is open.
func (s *Store) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	return s.exec(ctx, "exec", stmt, args...)
}

func (s *Store) exec(ctx context.Context, op, stmt string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	if s.tx != nil {
		res, err = s.tx.ExecContext(ctx, stmt, args...)
	} else {
		res, err = s.db.ExecContext(ctx, stmt, args...)
	}
	if err != nil {
		return nil, classify(op, err, s.backoff)
	}
	return res, nil
}

// queryRow scans a single row through the open transaction.
func (s *Store) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	var row *sql.Row
	if s.tx != nil {
		row = s.tx.QueryRowContext(ctx, query, args...)
	} else {
		row = s.db.QueryRowContext(ctx, query, args...)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return classify("query", err, s.backoff)
	}
	return nil
}
