// Package fetch reads rows of a relation into typed records.
//
// A Fetcher wraps a relation and collects presentation options (ordering and
// pagination) through chained builder calls; nothing runs until Fetch or Iter.
// Each call projects the relation, builds
//
//	SELECT <columns> FROM <source> [ORDER BY <cols>] [LIMIT ? [OFFSET ?]]
//
// and decodes every column by its declared type. Blob columns are unpacked
// into structured values, decimals become *apd.Decimal.
package fetch
