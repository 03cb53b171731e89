package fetch

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/relpop/internal/relation"
)

// Record is one fetched row: a value per attribute of the result heading, in
// heading order. NULL columns hold nil.
type Record struct {
	heading relation.Heading
	values  []any
}

// Heading returns the result heading.
func (r Record) Heading() relation.Heading {
	return r.heading
}

// Get returns the value of the named attribute.
func (r Record) Get(name string) (any, bool) {
	i := r.heading.Index(name)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// Values returns the values in heading order.
func (r Record) Values() []any {
	return slices.Clone(r.values)
}

// Map returns the record keyed by attribute name.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, name := range r.heading.Names() {
		m[name] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the record as an object with attributes in heading
// order. Decimals are encoded as strings so no precision is lost.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.heading.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		v := r.values[i]
		if d, ok := v.(*apd.Decimal); ok {
			v = d.Text('f')
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
