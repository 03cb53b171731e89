package relation

import (
	"fmt"

	"github.com/roach88/relpop/internal/ir"
)

// Predicate is a row filter used by Restrict.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	// check validates the predicate against the heading it filters.
	check(h Heading) error

	predicateNode()
}

// Equals holds when Attr equals Value.
type Equals struct {
	Attr  string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

func (e Equals) check(h Heading) error {
	if !h.Has(e.Attr) {
		return &HeadingError{Attr: e.Attr, Message: "unknown attribute in restriction"}
	}
	if _, err := ir.ToParam(e.Value); err != nil {
		return &HeadingError{Attr: e.Attr, Message: fmt.Sprintf("invalid restriction value: %v", err)}
	}
	return nil
}

// And holds when all predicates hold. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

func (a And) check(h Heading) error {
	for _, p := range a.Predicates {
		if p == nil {
			return &HeadingError{Message: "nil predicate in And"}
		}
		if err := p.check(h); err != nil {
			return err
		}
	}
	return nil
}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

func (n Not) check(h Heading) error {
	if n.Predicate == nil {
		return &HeadingError{Message: "nil predicate in Not"}
	}
	return n.Predicate.check(h)
}

// Matching holds for rows that match at least one row of Rel on the common
// attributes (a semijoin). With no common attributes it holds whenever Rel is
// non-empty.
type Matching struct {
	Rel Relation
}

func (Matching) predicateNode() {}

func (m Matching) check(h Heading) error {
	if m.Rel == nil {
		return &HeadingError{Message: "nil relation in Matching"}
	}
	other, err := m.Rel.Heading()
	if err != nil {
		return err
	}
	return checkCommonTypes(h, other)
}

// KeyEquals restricts to the rows identified by k.
func KeyEquals(k ir.Key) And {
	fields := k.Fields()
	preds := make([]Predicate, len(fields))
	for i, f := range fields {
		preds[i] = Equals{Attr: f.Name, Value: f.Value}
	}
	return And{Predicates: preds}
}

// CheckPredicate validates p against rel's heading without building a Restrict.
func CheckPredicate(rel Relation, p Predicate) error {
	_, err := Restrict{Rel: rel, Where: p}.Heading()
	return err
}
