package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/relpop/internal/fetch"
	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
)

// MakeContext is what a maker sees while making one key.
type MakeContext struct {
	// Store is the session, with the key's transaction open.
	Store *store.Store

	// Target is the table to insert into.
	Target relation.Table

	// Upstream is the table's populate relation.
	Upstream relation.Relation
}

// MakerFunc computes and inserts the rows of Target for key.
type MakerFunc func(ctx context.Context, mc MakeContext, key ir.Key) error

// Makers maps maker names, as used in a declaration's make field, to makers.
type Makers map[string]MakerFunc

// DefaultMakers returns the built-in makers.
func DefaultMakers() Makers {
	return Makers{
		"copy": CopyMaker,
	}
}

// Names returns the registered maker names, sorted.
func (m Makers) Names() []string {
	return slices.Sorted(maps.Keys(m))
}

// CopyMaker inserts, for every upstream row matching key, a target row whose
// attributes are taken from the same-named upstream attributes. Target
// attributes with no upstream counterpart are left NULL.
func CopyMaker(ctx context.Context, mc MakeContext, key ir.Key) error {
	records, err := fetch.New(mc.Store, relation.Restrict{
		Rel:   mc.Upstream,
		Where: relation.KeyEquals(key),
	}).Fetch(ctx, relation.Projection{})
	if err != nil {
		return fmt.Errorf("copy into %s: %w", mc.Target.Name, err)
	}

	h, err := mc.Target.Heading()
	if err != nil {
		return err
	}
	for _, rec := range records {
		row := store.Row{}
		for _, a := range h.Attributes() {
			if v, ok := rec.Get(a.Name); ok {
				row[a.Name] = v
			}
		}
		if err := mc.Store.Insert(ctx, mc.Target, row); err != nil {
			return fmt.Errorf("copy into %s: %w", mc.Target.Name, err)
		}
	}
	return nil
}

// AutoTable is an auto-populated catalog table bound to a store and a maker.
type AutoTable struct {
	store  *store.Store
	target relation.Table
	popRel relation.Relation
	maker  MakerFunc
}

// Auto binds the named auto-populated table to s and to its maker in makers.
func (c *Catalog) Auto(name string, s *store.Store, makers Makers) (*AutoTable, error) {
	d, ok := c.decls[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	if !d.Tier.Auto() {
		return nil, &DeclError{Table: name, Field: "tier", Message: fmt.Sprintf("%s tables are not auto-populated", d.Tier), Pos: d.pos}
	}
	maker, ok := makers[d.Make]
	if !ok {
		return nil, &DeclError{Table: name, Field: "make", Message: fmt.Sprintf("unknown maker %q (have %v)", d.Make, makers.Names()), Pos: d.pos}
	}
	popRel, err := c.PopulateRelation(name)
	if err != nil {
		return nil, err
	}
	return &AutoTable{store: s, target: d.Table, popRel: popRel, maker: maker}, nil
}

// Target returns the table being populated.
func (a *AutoTable) Target() relation.Table {
	return a.target
}

// PopulateRelation returns the join of the table's dependencies.
func (a *AutoTable) PopulateRelation() relation.Relation {
	return a.popRel
}

// MakeTuples runs the bound maker for key.
func (a *AutoTable) MakeTuples(ctx context.Context, key ir.Key) error {
	return a.maker(ctx, MakeContext{Store: a.store, Target: a.target, Upstream: a.popRel}, key)
}
