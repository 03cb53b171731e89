package relation

import (
	"fmt"
	"strings"
)

// Relation is a table or a relational expression.
//
// This is a sealed interface - only types in this package implement it.
type Relation interface {
	// Heading resolves the relation's attribute list.
	Heading() (Heading, error)

	relationNode()
}

// Table is a stored base relation.
type Table struct {
	Name string
	Head Heading
}

func (Table) relationNode() {}

// NewTable builds a table with a validated heading.
// A table needs a name and at least one primary-key attribute.
func NewTable(name string, attrs ...Attribute) (Table, error) {
	if name == "" {
		return Table{}, &HeadingError{Message: "table name is empty"}
	}
	h, err := NewHeading(attrs...)
	if err != nil {
		return Table{}, fmt.Errorf("table %s: %w", name, err)
	}
	if len(h.KeyNames()) == 0 {
		return Table{}, fmt.Errorf("table %s: %w", name, &HeadingError{Message: "no primary key attribute"})
	}
	return Table{Name: name, Head: h}, nil
}

// MustTable is like NewTable but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTable(name string, attrs ...Attribute) Table {
	t, err := NewTable(name, attrs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Heading returns the declared heading.
func (t Table) Heading() (Heading, error) {
	if t.Name == "" {
		return Heading{}, &HeadingError{Message: "table name is empty"}
	}
	return t.Head, nil
}

// Join is the natural join of two relations on their common attributes.
// With no common attributes it is the cartesian product.
type Join struct {
	Left  Relation
	Right Relation
}

func (Join) relationNode() {}

// Heading returns left attributes followed by right-only attributes.
// A common attribute is in the key if either side keys on it.
func (j Join) Heading() (Heading, error) {
	left, right, err := headings(j.Left, j.Right)
	if err != nil {
		return Heading{}, err
	}

	attrs := left.Attributes()
	for i, a := range attrs {
		if r, ok := right.Lookup(a.Name); ok {
			if r.Type != a.Type {
				return Heading{}, &HeadingError{
					Attr:    a.Name,
					Message: fmt.Sprintf("join type mismatch: %s vs %s", a.Type, r.Type),
				}
			}
			attrs[i].InKey = a.InKey || r.InKey
		}
	}
	for _, r := range right.Attributes() {
		if !left.Has(r.Name) {
			attrs = append(attrs, r)
		}
	}
	return NewHeading(attrs...)
}

// JoinAll folds relations left to right with Join.
// Returns nil when rels is empty.
func JoinAll(rels ...Relation) Relation {
	if len(rels) == 0 {
		return nil
	}
	out := rels[0]
	for _, r := range rels[1:] {
		out = Join{Left: out, Right: r}
	}
	return out
}

// Difference holds the rows of Left that match no row of Right on their
// common attributes.
type Difference struct {
	Left  Relation
	Right Relation
}

func (Difference) relationNode() {}

// Heading returns the left heading.
func (d Difference) Heading() (Heading, error) {
	left, right, err := headings(d.Left, d.Right)
	if err != nil {
		return Heading{}, err
	}
	if err := checkCommonTypes(left, right); err != nil {
		return Heading{}, err
	}
	return left, nil
}

// Restrict holds the rows of Rel satisfying Where. A nil Where keeps every row.
type Restrict struct {
	Rel   Relation
	Where Predicate
}

func (Restrict) relationNode() {}

// Heading returns the restricted relation's heading after validating the predicate.
func (r Restrict) Heading() (Heading, error) {
	if r.Rel == nil {
		return Heading{}, &HeadingError{Message: "restrict of nil relation"}
	}
	h, err := r.Rel.Heading()
	if err != nil {
		return Heading{}, err
	}
	if r.Where != nil {
		if err := r.Where.check(h); err != nil {
			return Heading{}, err
		}
	}
	return h, nil
}

// Rename maps a source attribute to a new name.
type Rename struct {
	As   string
	From string
}

// ParseRename parses "new=old".
func ParseRename(s string) (Rename, error) {
	as, from, ok := strings.Cut(s, "=")
	as, from = strings.TrimSpace(as), strings.TrimSpace(from)
	if !ok || as == "" || from == "" {
		return Rename{}, &ProjectionError{Attr: s, Message: `rename must have the form "new=old"`}
	}
	return Rename{As: as, From: from}, nil
}

// Projection lists the attributes and renames to keep.
// An empty projection keeps the whole heading. "*" in Attrs keeps every
// attribute, with renamed ones appearing only under their new name; naming
// an attribute explicitly as well as renaming it keeps both columns.
type Projection struct {
	Attrs   []string
	Renames []Rename
}

// IsEmpty reports whether the projection names nothing.
func (p Projection) IsEmpty() bool {
	return len(p.Attrs) == 0 && len(p.Renames) == 0
}

// Project keeps the primary key of Rel plus the listed attributes and renames.
type Project struct {
	Rel     Relation
	Attrs   []string
	Renames []Rename
}

func (Project) relationNode() {}

// Apply builds the projection of rel. An empty projection keeps all attributes.
func (p Projection) Apply(rel Relation) Project {
	if p.IsEmpty() {
		return Project{Rel: rel, Attrs: []string{"*"}}
	}
	return Project{Rel: rel, Attrs: p.Attrs, Renames: p.Renames}
}

// KeyOnly projects rel onto its primary key.
func KeyOnly(rel Relation) Project {
	return Project{Rel: rel}
}

// Column is one output column of a projection.
type Column struct {
	Attribute
	// Source is the attribute name in the projected relation.
	Source string
}

// Columns resolves the projection to its output columns in source order.
func (p Project) Columns() ([]Column, error) {
	if p.Rel == nil {
		return nil, &HeadingError{Message: "project of nil relation"}
	}
	src, err := p.Rel.Heading()
	if err != nil {
		return nil, err
	}

	star := false
	listed := make(map[string]bool, len(p.Attrs))
	for _, name := range p.Attrs {
		if name == "*" {
			star = true
			continue
		}
		if !src.Has(name) {
			return nil, &ProjectionError{Attr: name, Message: "unknown attribute"}
		}
		listed[name] = true
	}

	renamed := make(map[string]string, len(p.Renames))
	for _, r := range p.Renames {
		if r.As == "" || r.From == "" {
			return nil, &ProjectionError{Attr: r.As + "=" + r.From, Message: "empty rename"}
		}
		if !src.Has(r.From) {
			return nil, &ProjectionError{Attr: r.From, Message: "unknown attribute in rename"}
		}
		if _, dup := renamed[r.From]; dup {
			return nil, &ProjectionError{Attr: r.From, Message: "attribute renamed twice"}
		}
		renamed[r.From] = r.As
	}

	var cols []Column
	seen := make(map[string]bool)
	add := func(a Attribute, name string) error {
		if seen[name] {
			return &ProjectionError{Attr: name, Message: "duplicate attribute in result"}
		}
		seen[name] = true
		source := a.Name
		a.Name = name
		cols = append(cols, Column{Attribute: a, Source: source})
		return nil
	}

	for _, a := range src.Attributes() {
		as, isRenamed := renamed[a.Name]
		if listed[a.Name] || ((star || a.InKey) && !isRenamed) {
			if err := add(a, a.Name); err != nil {
				return nil, err
			}
		}
		if isRenamed {
			if err := add(a, as); err != nil {
				return nil, err
			}
		}
	}
	return cols, nil
}

// Heading returns the projected heading.
func (p Project) Heading() (Heading, error) {
	cols, err := p.Columns()
	if err != nil {
		return Heading{}, err
	}
	attrs := make([]Attribute, len(cols))
	for i, c := range cols {
		attrs[i] = c.Attribute
	}
	return NewHeading(attrs...)
}

func headings(left, right Relation) (Heading, Heading, error) {
	if left == nil || right == nil {
		return Heading{}, Heading{}, &HeadingError{Message: "binary operator with nil operand"}
	}
	l, err := left.Heading()
	if err != nil {
		return Heading{}, Heading{}, err
	}
	r, err := right.Heading()
	if err != nil {
		return Heading{}, Heading{}, err
	}
	return l, r, nil
}

func checkCommonTypes(left, right Heading) error {
	for _, name := range left.Common(right) {
		l, _ := left.Lookup(name)
		r, _ := right.Lookup(name)
		if l.Type != r.Type {
			return &HeadingError{Attr: name, Message: fmt.Sprintf("type mismatch: %s vs %s", l.Type, r.Type)}
		}
	}
	return nil
}
