package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relpop/internal/relation"
)

// DecimalCollation names the collation that compares decimal text by
// numeric value. The store registers it on every connection.
const DecimalCollation = "DECIMAL"

// columnAffinity maps attribute types to SQLite column types.
// Decimals are stored as text so no precision is lost to REAL; the column
// collation makes comparisons and ordering numeric.
var columnAffinity = map[relation.AttrType]string{
	relation.TypeInt:     "INTEGER",
	relation.TypeFloat:   "REAL",
	relation.TypeString:  "TEXT",
	relation.TypeBool:    "INTEGER",
	relation.TypeDate:    "TEXT",
	relation.TypeDecimal: "TEXT COLLATE " + DecimalCollation,
	relation.TypeBlob:    "BLOB",
}

// CreateTable builds an idempotent CREATE TABLE statement for t.
// Key attributes are NOT NULL and form the PRIMARY KEY; dependent attributes
// are nullable.
func CreateTable(t relation.Table) (string, error) {
	h, err := t.Heading()
	if err != nil {
		return "", err
	}
	if len(h.KeyNames()) == 0 {
		return "", &relation.HeadingError{Message: fmt.Sprintf("table %s has no primary key", t.Name)}
	}

	defs := make([]string, 0, h.Len()+1)
	for _, a := range h.Attributes() {
		def := quoteIdent(a.Name) + " " + columnAffinity[a.Type]
		if a.InKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+columnList(h.KeyNames())+")")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", ")), nil
}

// Insert builds a parameterized INSERT for the named columns of t.
func Insert(t relation.Table, names []string) (string, error) {
	h, err := t.Heading()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("insert into %s: no columns", t.Name)
	}
	for _, n := range names {
		if !h.Has(n) {
			return "", &relation.HeadingError{Attr: n, Message: fmt.Sprintf("not an attribute of %s", t.Name)}
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(t.Name), columnList(names), placeholders), nil
}
