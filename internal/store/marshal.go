package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/relpop/internal/blob"
	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
)

// dateLayout is the stored form of date attributes.
const dateLayout = time.DateOnly

// columnValue converts a Go value into the SQL parameter stored for a.
// Blob values are packed; decimals are stored as plain decimal text, reduced
// to their shortest form when they are part of the key.
func columnValue(a relation.Attribute, v any) (any, error) {
	if iv, ok := v.(ir.IRValue); ok {
		p, err := ir.ToParam(iv)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		v = p
	}
	if v == nil {
		if a.InKey {
			return nil, fmt.Errorf("attribute %s: key attribute cannot be null", a.Name)
		}
		return nil, nil
	}

	switch a.Type {
	case relation.TypeInt:
		n, ok := asInt64(v)
		if !ok {
			return nil, typeError(a, v)
		}
		return n, nil
	case relation.TypeFloat:
		if f, ok := v.(float64); ok {
			return f, nil
		}
		if f, ok := v.(float32); ok {
			return float64(f), nil
		}
		if n, ok := asInt64(v); ok {
			return float64(n), nil
		}
		return nil, typeError(a, v)
	case relation.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(a, v)
		}
		return s, nil
	case relation.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(a, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case relation.TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.Format(dateLayout), nil
		case string:
			if _, err := time.Parse(dateLayout, d); err != nil {
				return nil, fmt.Errorf("attribute %s: invalid date %q: %w", a.Name, d, err)
			}
			return d, nil
		}
		return nil, typeError(a, v)
	case relation.TypeDecimal:
		d, err := asDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		if a.InKey {
			return ReduceDecimal(d), nil
		}
		return d.Text('f'), nil
	case relation.TypeBlob:
		data, err := blob.Pack(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("attribute %s: unsupported type %s", a.Name, a.Type)
}

func typeError(a relation.Attribute, v any) error {
	return fmt.Errorf("attribute %s: cannot store %T as %s", a.Name, v, a.Type)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		// Decoders without an integer type hand back whole numbers as floats.
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}

// ReduceDecimal renders d without trailing zeros: 1.50 and 1.5 both become
// "1.5". Decimal keys and restriction values use this form.
func ReduceDecimal(d *apd.Decimal) string {
	var r apd.Decimal
	r.Reduce(d)
	return r.Text('f')
}

func asDecimal(v any) (*apd.Decimal, error) {
	dec, err := parseDecimal(v)
	if err != nil {
		return nil, err
	}
	if dec.Form != apd.Finite {
		return nil, fmt.Errorf("decimal %s is not finite", dec)
	}
	return dec, nil
}

func parseDecimal(v any) (*apd.Decimal, error) {
	switch d := v.(type) {
	case *apd.Decimal:
		if d == nil {
			return nil, fmt.Errorf("nil decimal")
		}
		return d, nil
	case string:
		dec, _, err := apd.NewFromString(strings.TrimSpace(d))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", d, err)
		}
		return dec, nil
	case float64:
		dec := new(apd.Decimal)
		if _, err := dec.SetFloat64(d); err != nil {
			return nil, fmt.Errorf("invalid decimal %v: %w", d, err)
		}
		return dec, nil
	}
	if n, ok := asInt64(v); ok {
		return apd.New(n, 0), nil
	}
	return nil, fmt.Errorf("cannot store %T as decimal", v)
}

// keyValue converts a scanned key column into an IRValue.
// Booleans are stored as integers and come back as int64.
func keyValue(a relation.Attribute, v any) (ir.IRValue, error) {
	if a.Type == relation.TypeBool {
		if n, ok := v.(int64); ok {
			return ir.IRBool(n != 0), nil
		}
	}
	val, err := ir.FromSQL(v)
	if err != nil {
		return nil, fmt.Errorf("key attribute %s: %w", a.Name, err)
	}
	return val, nil
}

// headingSignature renders a heading as "name type[*], ..." with * marking
// key attributes.
func headingSignature(h relation.Heading) string {
	parts := make([]string, 0, h.Len())
	for _, a := range h.Attributes() {
		p := a.Name + " " + string(a.Type)
		if a.InKey {
			p += "*"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}
