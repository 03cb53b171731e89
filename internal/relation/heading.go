package relation

import (
	"fmt"
	"slices"
)

// AttrType is the declared type of an attribute.
type AttrType string

const (
	TypeInt     AttrType = "int"
	TypeFloat   AttrType = "float"
	TypeString  AttrType = "string"
	TypeBool    AttrType = "bool"
	TypeDate    AttrType = "date"
	TypeDecimal AttrType = "decimal"
	TypeBlob    AttrType = "blob"
)

var validTypes = map[AttrType]bool{
	TypeInt:     true,
	TypeFloat:   true,
	TypeString:  true,
	TypeBool:    true,
	TypeDate:    true,
	TypeDecimal: true,
	TypeBlob:    true,
}

// ParseAttrType validates a type name.
func ParseAttrType(s string) (AttrType, error) {
	t := AttrType(s)
	if !validTypes[t] {
		return "", fmt.Errorf("invalid attribute type %q: must be one of int, float, string, bool, date, decimal, blob", s)
	}
	return t, nil
}

// Attribute is one column of a heading.
type Attribute struct {
	Name  string
	Type  AttrType
	InKey bool
}

// IsBlob reports whether stored values need unpacking.
func (a Attribute) IsBlob() bool {
	return a.Type == TypeBlob
}

// Heading is the resolved, ordered attribute list of a relation.
type Heading struct {
	attrs []Attribute
}

// NewHeading validates and builds a heading.
// Names must be unique and non-empty, types valid; blobs cannot be key attributes.
func NewHeading(attrs ...Attribute) (Heading, error) {
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if a.Name == "" {
			return Heading{}, &HeadingError{Message: "attribute name is empty"}
		}
		if seen[a.Name] {
			return Heading{}, &HeadingError{Attr: a.Name, Message: "duplicate attribute"}
		}
		if !validTypes[a.Type] {
			return Heading{}, &HeadingError{Attr: a.Name, Message: fmt.Sprintf("invalid type %q", a.Type)}
		}
		if a.InKey && (a.Type == TypeBlob || a.Type == TypeFloat) {
			return Heading{}, &HeadingError{Attr: a.Name, Message: fmt.Sprintf("%s attributes cannot be part of the primary key", a.Type)}
		}
		seen[a.Name] = true
	}
	return Heading{attrs: slices.Clone(attrs)}, nil
}

// MustHeading is like NewHeading but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHeading(attrs ...Attribute) Heading {
	h, err := NewHeading(attrs...)
	if err != nil {
		panic(err)
	}
	return h
}

// Key is a shorthand for a primary-key attribute.
func Key(name string, t AttrType) Attribute {
	return Attribute{Name: name, Type: t, InKey: true}
}

// Attr is a shorthand for a dependent (non-key) attribute.
func Attr(name string, t AttrType) Attribute {
	return Attribute{Name: name, Type: t}
}

// Len returns the number of attributes.
func (h Heading) Len() int {
	return len(h.attrs)
}

// Attributes returns a copy of the attributes in order.
func (h Heading) Attributes() []Attribute {
	return slices.Clone(h.attrs)
}

// Names returns all attribute names in order.
func (h Heading) Names() []string {
	names := make([]string, len(h.attrs))
	for i, a := range h.attrs {
		names[i] = a.Name
	}
	return names
}

// KeyNames returns primary-key attribute names in order.
func (h Heading) KeyNames() []string {
	var names []string
	for _, a := range h.attrs {
		if a.InKey {
			names = append(names, a.Name)
		}
	}
	return names
}

// Blobs returns the names of blob attributes.
func (h Heading) Blobs() []string {
	var names []string
	for _, a := range h.attrs {
		if a.IsBlob() {
			names = append(names, a.Name)
		}
	}
	return names
}

// Lookup returns the named attribute.
func (h Heading) Lookup(name string) (Attribute, bool) {
	if i := h.Index(name); i >= 0 {
		return h.attrs[i], true
	}
	return Attribute{}, false
}

// Index returns the position of the named attribute, or -1.
func (h Heading) Index(name string) int {
	return slices.IndexFunc(h.attrs, func(a Attribute) bool { return a.Name == name })
}

// Has reports whether the heading contains the named attribute.
func (h Heading) Has(name string) bool {
	return h.Index(name) >= 0
}

// Common returns the attribute names present in both headings, in h's order.
func (h Heading) Common(other Heading) []string {
	var names []string
	for _, a := range h.attrs {
		if other.Has(a.Name) {
			names = append(names, a.Name)
		}
	}
	return names
}
