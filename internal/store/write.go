package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/querysql"
	"github.com/roach88/relpop/internal/relation"
)

// Row is one tuple to insert, keyed by attribute name.
type Row map[string]any

// Declare creates t if it does not exist and records its heading.
// Declaring a table again with the same heading is a no-op; a different
// heading is an error.
func (s *Store) Declare(ctx context.Context, t relation.Table) error {
	h, err := t.Heading()
	if err != nil {
		return fmt.Errorf("declare: %w", err)
	}
	sig := headingSignature(h)

	var existing string
	err = s.queryRow(ctx, `SELECT heading FROM relpop_tables WHERE name = ?`, []any{t.Name}, &existing)
	switch {
	case err == nil:
		if existing != sig {
			return fmt.Errorf("declare %s: already declared as (%s), not (%s)", t.Name, existing, sig)
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("declare %s: %w", t.Name, err)
	}

	ddl, err := querysql.CreateTable(t)
	if err != nil {
		return fmt.Errorf("declare %s: %w", t.Name, err)
	}
	if _, err := s.exec(ctx, "create "+t.Name, ddl); err != nil {
		return fmt.Errorf("declare %s: %w", t.Name, err)
	}
	if _, err := s.exec(ctx, "declare "+t.Name, `
		INSERT INTO relpop_tables (name, heading, heading_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, t.Name, sig, ir.HeadingHash(sig)); err != nil {
		return fmt.Errorf("declare %s: %w", t.Name, err)
	}
	return nil
}

// Insert adds one row to t. Every key attribute must be present; attributes
// missing from row are stored as NULL.
//
// Inserting a key that already exists fails; see IsDuplicate.
func (s *Store) Insert(ctx context.Context, t relation.Table, row Row) error {
	h, err := t.Heading()
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	for name := range row {
		if !h.Has(name) {
			return fmt.Errorf("insert into %s: %w", t.Name, &relation.HeadingError{Attr: name, Message: "not an attribute"})
		}
	}

	var (
		names  []string
		params []any
	)
	for _, a := range h.Attributes() {
		v, present := row[a.Name]
		if !present {
			if a.InKey {
				return fmt.Errorf("insert into %s: missing key attribute %s", t.Name, a.Name)
			}
			continue
		}
		p, err := columnValue(a, v)
		if err != nil {
			return fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		names = append(names, a.Name)
		params = append(params, p)
	}

	stmt, err := querysql.Insert(t, names)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if _, err := s.exec(ctx, "insert into "+t.Name, stmt, params...); err != nil {
		return fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	return nil
}

// InsertAll inserts rows in order and stops at the first failure.
func (s *Store) InsertAll(ctx context.Context, t relation.Table, rows []Row) error {
	for i, row := range rows {
		if err := s.Insert(ctx, t, row); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}
