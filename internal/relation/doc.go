// Package relation provides the relational expressions relpop computes over.
//
// A Relation is a table or an expression built from tables with Join,
// Difference, Restrict and Project. Expressions are pure values: building one
// never touches the database. Evaluation belongs to the querysql compiler and
// the store.
//
// SEALED INTERFACES:
//
// Relation and Predicate are sealed with marker methods so backends can switch
// exhaustively over node types:
//
//	switch r := rel.(type) {
//	case Table:
//	case Join:
//	case Difference:
//	case Restrict:
//	case Project:
//	}
//
// HEADINGS:
//
// Every relation resolves to a Heading, the ordered list of attributes with
// their types and primary-key membership:
//
//	Table        declared heading
//	Join         left attributes, then right-only attributes; key is the union
//	Difference   left heading (rows of left with no match in right on common attributes)
//	Restrict     heading of the restricted relation
//	Project      primary key, listed attributes and renames
//
// Projection always retains the primary key. A renamed key attribute stays in
// the key under its new name.
package relation
