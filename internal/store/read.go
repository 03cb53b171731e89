package store

import (
	"context"
	"fmt"

	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/querysql"
	"github.com/roach88/relpop/internal/relation"
)

// Keys returns the distinct primary keys of rel, ordered by the key
// attributes.
//
// Returns an empty slice (not nil) when rel is empty.
func (s *Store) Keys(ctx context.Context, rel relation.Relation) ([]ir.Key, error) {
	keyRel := relation.KeyOnly(rel)
	h, err := keyRel.Heading()
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	attrs := h.Attributes()

	query, params, err := querysql.NewSQLCompiler().Select(keyRel, querysql.SelectOptions{OrderBy: h.Names()})
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	rows, err := s.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	defer rows.Close()

	keys := []ir.Key{}
	var prev ir.Key
	for rows.Next() {
		raw := make([]any, len(attrs))
		dest := make([]any, len(attrs))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("keys: scan: %w", err)
		}

		fields := make([]ir.KeyField, len(attrs))
		for i, a := range attrs {
			v, err := keyValue(a, raw[i])
			if err != nil {
				return nil, fmt.Errorf("keys: %w", err)
			}
			fields[i] = ir.F(a.Name, v)
		}
		k, err := ir.NewKey(fields...)
		if err != nil {
			return nil, fmt.Errorf("keys: %w", err)
		}
		// A projection can repeat a key; rows are ordered so repeats are adjacent.
		if len(keys) > 0 && k.Equal(prev) {
			continue
		}
		keys = append(keys, k)
		prev = k
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys: %w", classify("query", err, s.backoff))
	}
	return keys, nil
}

// Contains reports whether t holds a row matching key on the attributes the
// two share.
func (s *Store) Contains(ctx context.Context, t relation.Table, key ir.Key) (bool, error) {
	h, err := t.Heading()
	if err != nil {
		return false, fmt.Errorf("contains: %w", err)
	}
	var fields []ir.KeyField
	for _, f := range key.Fields() {
		if h.Has(f.Name) {
			fields = append(fields, f)
		}
	}
	sub, err := ir.NewKey(fields...)
	if err != nil {
		return false, fmt.Errorf("contains: %w", err)
	}

	query, params, err := querysql.NewSQLCompiler().Exists(relation.Restrict{Rel: t, Where: relation.KeyEquals(sub)})
	if err != nil {
		return false, fmt.Errorf("contains: %w", err)
	}
	var found bool
	if err := s.queryRow(ctx, query, params, &found); err != nil {
		return false, fmt.Errorf("contains: %w", err)
	}
	return found, nil
}

// Count returns the number of rows in rel.
func (s *Store) Count(ctx context.Context, rel relation.Relation) (int, error) {
	query, params, err := querysql.NewSQLCompiler().Count(rel)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	var n int
	if err := s.queryRow(ctx, query, params, &n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Declared reports whether a table named name has been declared.
func (s *Store) Declared(ctx context.Context, name string) (bool, error) {
	var found bool
	err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM relpop_tables WHERE name = ?)`, []any{name}, &found)
	if err != nil {
		return false, fmt.Errorf("declared: %w", err)
	}
	return found, nil
}
