package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
)

// SQLCompiler compiles relational expressions to parameterized SQLite.
//
// CRITICAL: All values are parameterized (never interpolated).
// Identifiers are always double-quoted.
//
// A compiler is not safe for concurrent use; each top-level call resets the
// alias counter so the same expression always compiles to the same text.
type SQLCompiler struct {
	sb     strings.Builder
	params []any
	alias  int
}

// SelectOptions are the presentation options of a read query.
type SelectOptions struct {
	// OrderBy lists attributes to order by, ascending, in the given order.
	OrderBy []string
	// Limit bounds the row count when > 0.
	Limit int
	// Offset skips rows when > 0 and Limit is set.
	Offset int
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

func (c *SQLCompiler) reset() {
	c.sb.Reset()
	c.params = nil
	c.alias = 0
}

func (c *SQLCompiler) finish() (string, []any) {
	return c.sb.String(), c.params
}

// Compile converts a relation into a SELECT over its heading.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(rel relation.Relation) (string, []any, error) {
	c.reset()
	if err := c.compileRelation(rel); err != nil {
		return "", nil, err
	}
	sql, params := c.finish()
	return sql, params, nil
}

// Source returns the FROM-clause expression of a relation: the quoted table
// name for a table, an aliased subquery otherwise.
func (c *SQLCompiler) Source(rel relation.Relation) (string, []any, error) {
	c.reset()
	if err := c.writeSource(rel); err != nil {
		return "", nil, err
	}
	sql, params := c.finish()
	return sql, params, nil
}

// Select builds the read query
//
//	SELECT <heading columns> FROM <source> [ORDER BY <cols>] [LIMIT ? [OFFSET ?]]
//
// Ordering attributes must belong to the relation's heading. The offset is
// dropped unless a limit is set.
func (c *SQLCompiler) Select(rel relation.Relation, opts SelectOptions) (string, []any, error) {
	c.reset()
	h, err := heading(rel)
	if err != nil {
		return "", nil, err
	}
	for _, name := range opts.OrderBy {
		if !h.Has(name) {
			return "", nil, &relation.HeadingError{Attr: name, Message: "unknown attribute in ORDER BY"}
		}
	}

	c.sb.WriteString("SELECT ")
	c.sb.WriteString(columnList(h.Names()))
	c.sb.WriteString(" FROM ")
	if err := c.writeSource(rel); err != nil {
		return "", nil, err
	}

	if len(opts.OrderBy) > 0 {
		c.sb.WriteString(" ORDER BY ")
		terms := make([]string, len(opts.OrderBy))
		for i, name := range opts.OrderBy {
			a, _ := h.Lookup(name)
			terms[i] = collated(quoteIdent(name), a)
		}
		c.sb.WriteString(strings.Join(terms, ", "))
	}
	if opts.Limit > 0 {
		c.sb.WriteString(" LIMIT ?")
		c.params = append(c.params, int64(opts.Limit))
		if opts.Offset > 0 {
			c.sb.WriteString(" OFFSET ?")
			c.params = append(c.params, int64(opts.Offset))
		}
	}

	sql, params := c.finish()
	return sql, params, nil
}

// Exists builds SELECT EXISTS (...) over the relation.
func (c *SQLCompiler) Exists(rel relation.Relation) (string, []any, error) {
	c.reset()
	c.sb.WriteString("SELECT EXISTS (")
	if err := c.compileRelation(rel); err != nil {
		return "", nil, err
	}
	c.sb.WriteString(")")
	sql, params := c.finish()
	return sql, params, nil
}

// Count builds SELECT COUNT(*) over the relation.
func (c *SQLCompiler) Count(rel relation.Relation) (string, []any, error) {
	c.reset()
	c.sb.WriteString("SELECT COUNT(*) FROM ")
	if err := c.writeSource(rel); err != nil {
		return "", nil, err
	}
	sql, params := c.finish()
	return sql, params, nil
}

// writeSource writes the FROM expression used by the top-level queries.
func (c *SQLCompiler) writeSource(rel relation.Relation) error {
	if t, ok := asTable(rel); ok {
		if _, err := t.Heading(); err != nil {
			return err
		}
		c.sb.WriteString(quoteIdent(t.Name))
		return nil
	}
	return c.writeItem(rel, c.nextAlias())
}

// writeItem writes rel as a FROM item named alias.
func (c *SQLCompiler) writeItem(rel relation.Relation, alias string) error {
	if t, ok := asTable(rel); ok {
		if _, err := t.Heading(); err != nil {
			return err
		}
		fmt.Fprintf(&c.sb, "%s AS %s", quoteIdent(t.Name), alias)
		return nil
	}
	c.sb.WriteString("(")
	if err := c.compileRelation(rel); err != nil {
		return err
	}
	fmt.Fprintf(&c.sb, ") AS %s", alias)
	return nil
}

func (c *SQLCompiler) nextAlias() string {
	c.alias++
	return fmt.Sprintf("r%d", c.alias)
}

// compileRelation writes a full SELECT for rel.
func (c *SQLCompiler) compileRelation(rel relation.Relation) error {
	switch r := normalize(rel).(type) {
	case relation.Table:
		h, err := r.Heading()
		if err != nil {
			return err
		}
		fmt.Fprintf(&c.sb, "SELECT %s FROM %s", columnList(h.Names()), quoteIdent(r.Name))
		return nil
	case relation.Project:
		return c.compileProject(r)
	case relation.Restrict:
		return c.compileRestrict(r)
	case relation.Join:
		return c.compileJoin(r)
	case relation.Difference:
		return c.compileDifference(r)
	case nil:
		return fmt.Errorf("cannot compile nil relation")
	default:
		return fmt.Errorf("unsupported relation type: %T", rel)
	}
}

// compileProject writes SELECT r."src" AS "name", ... FROM <item>.
func (c *SQLCompiler) compileProject(p relation.Project) error {
	cols, err := p.Columns()
	if err != nil {
		return err
	}
	alias := c.nextAlias()

	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = qualified(alias, col.Source)
		if col.Name != col.Source {
			parts[i] += " AS " + quoteIdent(col.Name)
		}
	}
	c.sb.WriteString("SELECT ")
	c.sb.WriteString(strings.Join(parts, ", "))
	c.sb.WriteString(" FROM ")
	return c.writeItem(p.Rel, alias)
}

// compileRestrict writes SELECT ... FROM <item> WHERE <predicate>.
func (c *SQLCompiler) compileRestrict(r relation.Restrict) error {
	h, err := r.Heading()
	if err != nil {
		return err
	}
	alias := c.nextAlias()

	c.sb.WriteString("SELECT ")
	c.sb.WriteString(qualifiedList(alias, h.Names()))
	c.sb.WriteString(" FROM ")
	if err := c.writeItem(r.Rel, alias); err != nil {
		return err
	}
	if r.Where == nil {
		return nil
	}
	c.sb.WriteString(" WHERE ")
	return c.compilePredicate(r.Where, alias, h)
}

// compileJoin writes an inner join on the common attributes, or a cross join
// when there are none.
func (c *SQLCompiler) compileJoin(j relation.Join) error {
	h, err := j.Heading()
	if err != nil {
		return err
	}
	left, right, err := heading2(j.Left, j.Right)
	if err != nil {
		return err
	}
	la, ra := c.nextAlias(), c.nextAlias()

	parts := make([]string, 0, h.Len())
	for _, name := range h.Names() {
		if left.Has(name) {
			parts = append(parts, qualified(la, name))
		} else {
			parts = append(parts, qualified(ra, name))
		}
	}
	c.sb.WriteString("SELECT ")
	c.sb.WriteString(strings.Join(parts, ", "))
	c.sb.WriteString(" FROM ")
	if err := c.writeItem(j.Left, la); err != nil {
		return err
	}

	common := left.Common(right)
	if len(common) == 0 {
		c.sb.WriteString(" CROSS JOIN ")
		return c.writeItem(j.Right, ra)
	}
	c.sb.WriteString(" JOIN ")
	if err := c.writeItem(j.Right, ra); err != nil {
		return err
	}
	c.sb.WriteString(" ON ")
	c.sb.WriteString(matchCondition(la, ra, common))
	return nil
}

// compileDifference writes the left rows with no right match on the common
// attributes.
func (c *SQLCompiler) compileDifference(d relation.Difference) error {
	h, err := d.Heading()
	if err != nil {
		return err
	}
	right, err := heading(d.Right)
	if err != nil {
		return err
	}
	la := c.nextAlias()

	c.sb.WriteString("SELECT ")
	c.sb.WriteString(qualifiedList(la, h.Names()))
	c.sb.WriteString(" FROM ")
	if err := c.writeItem(d.Left, la); err != nil {
		return err
	}
	c.sb.WriteString(" WHERE NOT ")
	return c.writeMatch(d.Right, la, h.Common(right))
}

// writeMatch writes EXISTS (SELECT 1 FROM <rel> WHERE <common attrs equal>).
func (c *SQLCompiler) writeMatch(rel relation.Relation, outer string, common []string) error {
	inner := c.nextAlias()
	c.sb.WriteString("EXISTS (SELECT 1 FROM ")
	if err := c.writeItem(rel, inner); err != nil {
		return err
	}
	if len(common) > 0 {
		c.sb.WriteString(" WHERE ")
		c.sb.WriteString(matchCondition(inner, outer, common))
	}
	c.sb.WriteString(")")
	return nil
}

// compilePredicate writes a WHERE fragment for p over the relation aliased
// as alias with heading h.
// CRITICAL: Values are NEVER interpolated - always ? placeholders.
func (c *SQLCompiler) compilePredicate(p relation.Predicate, alias string, h relation.Heading) error {
	switch pred := p.(type) {
	case relation.Equals:
		return c.compileEquals(pred, alias, h)
	case *relation.Equals:
		return c.compileEquals(*pred, alias, h)
	case relation.And:
		return c.compileAnd(pred, alias, h)
	case *relation.And:
		return c.compileAnd(*pred, alias, h)
	case relation.Not:
		c.sb.WriteString("NOT (")
		if err := c.compilePredicate(pred.Predicate, alias, h); err != nil {
			return err
		}
		c.sb.WriteString(")")
		return nil
	case relation.Matching:
		other, err := heading(pred.Rel)
		if err != nil {
			return err
		}
		return c.writeMatch(pred.Rel, alias, h.Common(other))
	case nil:
		c.sb.WriteString("1 = 1")
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals writes r."attr" = ?.
func (c *SQLCompiler) compileEquals(eq relation.Equals, alias string, h relation.Heading) error {
	param, err := ir.ToParam(eq.Value)
	if err != nil {
		return fmt.Errorf("convert value for %s: %w", eq.Attr, err)
	}
	a, _ := h.Lookup(eq.Attr)
	fmt.Fprintf(&c.sb, "%s = ?", collated(qualified(alias, eq.Attr), a))
	c.params = append(c.params, param)
	return nil
}

// compileAnd writes a parenthesized conjunction; empty is always true.
func (c *SQLCompiler) compileAnd(and relation.And, alias string, h relation.Heading) error {
	if len(and.Predicates) == 0 {
		c.sb.WriteString("1 = 1")
		return nil
	}
	c.sb.WriteString("(")
	for i, pred := range and.Predicates {
		if i > 0 {
			c.sb.WriteString(" AND ")
		}
		if err := c.compilePredicate(pred, alias, h); err != nil {
			return err
		}
	}
	c.sb.WriteString(")")
	return nil
}

// normalize dereferences pointer relation nodes.
func normalize(rel relation.Relation) relation.Relation {
	switch r := rel.(type) {
	case *relation.Table:
		return *r
	case *relation.Project:
		return *r
	case *relation.Restrict:
		return *r
	case *relation.Join:
		return *r
	case *relation.Difference:
		return *r
	}
	return rel
}

func asTable(rel relation.Relation) (relation.Table, bool) {
	t, ok := normalize(rel).(relation.Table)
	return t, ok
}

func heading(rel relation.Relation) (relation.Heading, error) {
	if rel == nil {
		return relation.Heading{}, fmt.Errorf("cannot compile nil relation")
	}
	return rel.Heading()
}

func heading2(left, right relation.Relation) (relation.Heading, relation.Heading, error) {
	l, err := heading(left)
	if err != nil {
		return relation.Heading{}, relation.Heading{}, err
	}
	r, err := heading(right)
	if err != nil {
		return relation.Heading{}, relation.Heading{}, err
	}
	return l, r, nil
}

func matchCondition(a, b string, common []string) string {
	conds := make([]string, len(common))
	for i, name := range common {
		conds[i] = fmt.Sprintf("%s = %s", qualified(a, name), qualified(b, name))
	}
	return strings.Join(conds, " AND ")
}

// collated appends the decimal collation to a column expression of a
// decimal attribute.
func collated(expr string, a relation.Attribute) string {
	if a.Type == relation.TypeDecimal {
		return expr + " COLLATE " + DecimalCollation
	}
	return expr
}

func qualified(alias, name string) string {
	return alias + "." + quoteIdent(name)
}

func qualifiedList(alias string, names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = qualified(alias, n)
	}
	return strings.Join(parts, ", ")
}

func columnList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = quoteIdent(n)
	}
	return strings.Join(parts, ", ")
}

// quoteIdent quotes an SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
