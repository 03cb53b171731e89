package fetch

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/relpop/internal/blob"
	"github.com/roach88/relpop/internal/relation"
)

// decodeValue converts a raw scanned column into the Go value for a.
//
//	int     -> int64
//	float   -> float64
//	string  -> string
//	date    -> string (YYYY-MM-DD)
//	bool    -> bool
//	decimal -> *apd.Decimal
//	blob    -> blob.Unpack result
func decodeValue(a relation.Attribute, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch a.Type {
	case relation.TypeInt:
		if n, ok := raw.(int64); ok {
			return n, nil
		}
	case relation.TypeFloat:
		switch f := raw.(type) {
		case float64:
			return f, nil
		case int64:
			return float64(f), nil
		}
	case relation.TypeString, relation.TypeDate:
		switch s := raw.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case relation.TypeBool:
		switch b := raw.(type) {
		case int64:
			return b != 0, nil
		case bool:
			return b, nil
		}
	case relation.TypeDecimal:
		return decodeDecimal(raw)
	case relation.TypeBlob:
		data, ok := raw.([]byte)
		if !ok {
			break
		}
		return blob.Unpack(data)
	}
	return nil, fmt.Errorf("unexpected %T for %s attribute", raw, a.Type)
}

func decodeDecimal(raw any) (*apd.Decimal, error) {
	switch v := raw.(type) {
	case string:
		return parseDecimal(v)
	case []byte:
		return parseDecimal(string(v))
	case int64:
		return apd.New(v, 0), nil
	case float64:
		return new(apd.Decimal).SetFloat64(v)
	}
	return nil, fmt.Errorf("unexpected %T for decimal attribute", raw)
}

func parseDecimal(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return d, nil
}
