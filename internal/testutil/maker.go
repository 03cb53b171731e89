package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
)

// Conflict is a resolvable transaction error raised by ScriptedMaker.
type Conflict struct {
	Op    string
	maker *ScriptedMaker
}

func (c *Conflict) Error() string {
	return "scripted conflict in " + c.Op
}

// Culprit names the scripted statement.
func (c *Conflict) Culprit() string {
	return c.Op
}

// Resolve counts the call on the maker that raised the conflict.
func (c *Conflict) Resolve(ctx context.Context) error {
	if c.maker != nil {
		c.maker.mu.Lock()
		c.maker.resolves++
		c.maker.mu.Unlock()
	}
	return ctx.Err()
}

// ScriptedMaker is a make-tuples callback for tests. For each key it inserts
// one row into its table (the key's fields plus whatever Extra returns), then
// returns the scripted outcome for that key.
//
// Conflicts are raised after the insert so a test can observe that the
// rolled-back row never lands.
type ScriptedMaker struct {
	Store *store.Store
	Table relation.Table

	// Extra adds dependent attributes to the inserted row.
	Extra func(key ir.Key) store.Row

	mu        sync.Mutex
	calls     []ir.Key
	failures  map[string]error
	conflicts map[string]int
	resolves  int
}

// NewScriptedMaker creates a maker inserting into t through s.
func NewScriptedMaker(s *store.Store, t relation.Table) *ScriptedMaker {
	return &ScriptedMaker{
		Store:     s,
		Table:     t,
		failures:  make(map[string]error),
		conflicts: make(map[string]int),
	}
}

// FailOn makes MakeTuples return err for key.
func (m *ScriptedMaker) FailOn(key ir.Key, err error) *ScriptedMaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key.String()] = err
	return m
}

// ConflictOn makes the next n calls for key return a *Conflict.
// A negative n conflicts forever.
func (m *ScriptedMaker) ConflictOn(key ir.Key, n int) *ScriptedMaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[key.String()] = n
	return m
}

// MakeTuples implements the make-tuples callback.
func (m *ScriptedMaker) MakeTuples(ctx context.Context, key ir.Key) error {
	m.mu.Lock()
	m.calls = append(m.calls, key)
	id := key.String()
	failure := m.failures[id]
	conflict := false
	if n, ok := m.conflicts[id]; ok && n != 0 {
		conflict = true
		if n > 0 {
			m.conflicts[id] = n - 1
		}
	}
	m.mu.Unlock()

	if failure != nil {
		return failure
	}

	row := store.Row{}
	for _, f := range key.Fields() {
		row[f.Name] = f.Value
	}
	if m.Extra != nil {
		for k, v := range m.Extra(key) {
			row[k] = v
		}
	}
	if err := m.Store.Insert(ctx, m.Table, row); err != nil {
		return fmt.Errorf("scripted insert: %w", err)
	}

	if conflict {
		return &Conflict{Op: "insert into " + m.Table.Name, maker: m}
	}
	return nil
}

// Calls returns the keys MakeTuples was called with, in call order.
func (m *ScriptedMaker) Calls() []ir.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ir.Key, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times MakeTuples was called for key.
func (m *ScriptedMaker) CallCount(key ir.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.calls {
		if k.Equal(key) {
			n++
		}
	}
	return n
}

// Resolves returns how many times a Conflict from this maker was resolved.
func (m *ScriptedMaker) Resolves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolves
}

// AutoTable binds a target, a populate relation and a maker into an
// auto-populated table.
type AutoTable struct {
	Table    relation.Table
	Relation relation.Relation
	Maker    interface {
		MakeTuples(ctx context.Context, key ir.Key) error
	}
}

// Target returns the table being populated.
func (a AutoTable) Target() relation.Table {
	return a.Table
}

// PopulateRelation returns the key universe.
func (a AutoTable) PopulateRelation() relation.Relation {
	return a.Relation
}

// MakeTuples delegates to the maker.
func (a AutoTable) MakeTuples(ctx context.Context, key ir.Key) error {
	return a.Maker.MakeTuples(ctx, key)
}
