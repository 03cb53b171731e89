package fetch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relpop/internal/querysql"
	"github.com/roach88/relpop/internal/relation"
)

// Querier runs read queries. *store.Store implements it; while the store has
// an open transaction, fetches read inside it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Fetcher reads a relation into records.
type Fetcher struct {
	q       Querier
	rel     relation.Relation
	orderBy []string
	limit   int
	offset  int
}

// New creates a Fetcher over rel.
func New(q Querier, rel relation.Relation) *Fetcher {
	return &Fetcher{q: q, rel: rel}
}

// Limit bounds the result to n rows after skipping offset rows.
// n <= 0 removes the bound; offset is ignored without a bound.
func (f *Fetcher) Limit(n, offset int) *Fetcher {
	f.limit = n
	f.offset = offset
	return f
}

// OrderBy sorts the result ascending by attrs, in the order given.
// The attributes are names in the fetched (projected and renamed) heading.
func (f *Fetcher) OrderBy(attrs ...string) *Fetcher {
	f.orderBy = append([]string(nil), attrs...)
	return f
}

// Fetch runs the query and returns every record.
// An empty projection fetches all attributes.
func (f *Fetcher) Fetch(ctx context.Context, proj relation.Projection) ([]Record, error) {
	cur, err := f.Iter(ctx, proj)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	records := []Record{}
	for cur.Next() {
		records = append(records, cur.Record())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Iter runs the query and returns a cursor over its records. Blob columns
// are decoded one record at a time. The caller must Close the cursor.
func (f *Fetcher) Iter(ctx context.Context, proj relation.Projection) (*Cursor, error) {
	if f.q == nil {
		return nil, fmt.Errorf("fetch: no querier")
	}
	if f.rel == nil {
		return nil, fmt.Errorf("fetch: no relation")
	}

	projected := proj.Apply(f.rel)
	h, err := projected.Heading()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	query, params, err := querysql.NewSQLCompiler().Select(projected, querysql.SelectOptions{
		OrderBy: f.orderBy,
		Limit:   f.limit,
		Offset:  f.offset,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	rows, err := f.q.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return &Cursor{rows: rows, heading: h, attrs: h.Attributes()}, nil
}

// SQL returns the query Fetch would run for proj.
func (f *Fetcher) SQL(proj relation.Projection) (string, []any, error) {
	if f.rel == nil {
		return "", nil, fmt.Errorf("fetch: no relation")
	}
	return querysql.NewSQLCompiler().Select(proj.Apply(f.rel), querysql.SelectOptions{
		OrderBy: f.orderBy,
		Limit:   f.limit,
		Offset:  f.offset,
	})
}

// Cursor streams fetched records. It is single-pass and not safe for
// concurrent use.
type Cursor struct {
	rows    *sql.Rows
	heading relation.Heading
	attrs   []relation.Attribute
	row     int
	rec     Record
	err     error
}

// Next advances to the next record. It returns false at the end of the
// result or on error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil || c.rows == nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = fmt.Errorf("fetch: %w", err)
		}
		return false
	}

	raw := make([]any, len(c.attrs))
	dest := make([]any, len(c.attrs))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = fmt.Errorf("fetch: scan row %d: %w", c.row, err)
		return false
	}

	values := make([]any, len(c.attrs))
	for i, a := range c.attrs {
		v, err := decodeValue(a, raw[i])
		if err != nil {
			c.err = &DecodeError{Attr: a.Name, Row: c.row, Err: err}
			return false
		}
		values[i] = v
	}
	c.rec = Record{heading: c.heading, values: values}
	c.row++
	return true
}

// Record returns the current record.
func (c *Cursor) Record() Record {
	return c.rec
}

// Heading returns the heading of every record.
func (c *Cursor) Heading() relation.Heading {
	return c.heading
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying rows.
func (c *Cursor) Close() error {
	if c.rows == nil {
		return nil
	}
	rows := c.rows
	c.rows = nil
	return rows.Close()
}
