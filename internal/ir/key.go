package ir

import (
	"fmt"
	"slices"
)

// KeyField is one attribute of a Key.
type KeyField struct {
	Name  string
	Value IRValue
}

// Key is an ordered mapping from primary-key attribute name to scalar value.
//
// A Key is immutable once built: the engine hands Clone() to user callbacks so
// a callback can never corrupt the key used for set algebra.
type Key struct {
	fields []KeyField
}

// NewKey builds a key from fields in the given order.
// Returns an error on duplicate or empty names and nil values.
func NewKey(fields ...KeyField) (Key, error) {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return Key{}, fmt.Errorf("key field %d: empty name", i)
		}
		if seen[f.Name] {
			return Key{}, fmt.Errorf("key field %q: duplicate name", f.Name)
		}
		switch f.Value.(type) {
		case IRString, IRInt, IRBool:
		case nil:
			return Key{}, fmt.Errorf("key field %q: nil value", f.Name)
		default:
			return Key{}, fmt.Errorf("key field %q: %T is not a scalar", f.Name, f.Value)
		}
		seen[f.Name] = true
	}
	return Key{fields: slices.Clone(fields)}, nil
}

// MustKey is like NewKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustKey(fields ...KeyField) Key {
	k, err := NewKey(fields...)
	if err != nil {
		panic(err)
	}
	return k
}

// F is a shorthand for KeyField.
// Example: MustKey(F("subject_id", IRInt(1)), F("session", IRInt(2)))
func F(name string, value IRValue) KeyField {
	return KeyField{Name: name, Value: value}
}

// Len returns the number of attributes in the key.
func (k Key) Len() int {
	return len(k.fields)
}

// Names returns the attribute names in key order.
func (k Key) Names() []string {
	names := make([]string, len(k.fields))
	for i, f := range k.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the key's fields in order.
func (k Key) Fields() []KeyField {
	return slices.Clone(k.fields)
}

// Get returns the value of the named attribute.
func (k Key) Get(name string) (IRValue, bool) {
	for _, f := range k.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Clone returns an independent copy of the key.
func (k Key) Clone() Key {
	return Key{fields: slices.Clone(k.fields)}
}

// Equal reports whether both keys hold the same attributes in the same order.
func (k Key) Equal(other Key) bool {
	return slices.Equal(k.fields, other.fields)
}

// Object returns the key as an IRObject (order is lost).
func (k Key) Object() IRObject {
	obj := make(IRObject, len(k.fields))
	for _, f := range k.fields {
		obj[f.Name] = f.Value
	}
	return obj
}

// String renders the key as canonical JSON.
func (k Key) String() string {
	data, err := MarshalCanonical(k.Object())
	if err != nil {
		return fmt.Sprintf("<invalid key: %v>", err)
	}
	return string(data)
}
