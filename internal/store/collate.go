package store

import (
	"database/sql"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/relpop/internal/querysql"
)

// driverName is the go-sqlite3 driver with the decimal collation installed
// on every connection.
const driverName = "sqlite3_relpop"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterCollation(querysql.DecimalCollation, compareDecimalText)
		},
	})
}

// compareDecimalText orders decimal text by value, so "9.25" < "10.5" and
// "1.5" equals "1.50". Text that does not parse as a finite decimal sorts
// after every number, by byte order among itself.
func compareDecimalText(a, b string) int {
	x, okA := parseFinite(a)
	y, okB := parseFinite(b)
	switch {
	case okA && okB:
		return x.Cmp(y)
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

func parseFinite(s string) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(s)
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return d, true
}
