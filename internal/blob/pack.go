package blob

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	magicPlain      = "RPB\x01"
	magicCompressed = "RPZ\x01"

	// CompressThreshold is the encoded size above which payloads are compressed.
	CompressThreshold = 1024
)

const (
	tagNil    byte = 'N'
	tagTrue   byte = 'T'
	tagFalse  byte = 'F'
	tagInt    byte = 'i'
	tagFloat  byte = 'f'
	tagString byte = 's'
	tagBytes  byte = 'b'
	tagList   byte = 'l'
	tagMap    byte = 'm'

	// Typed values carry an element kind after the tag so they unpack to
	// the Go type they were packed from.
	tagScalar   byte = 'k'
	tagArray    byte = 'a'
	tagTypedMap byte = 'M'
)

// kind identifies a predeclared Go type inside typed values.
type kind byte

const (
	kindBool kind = iota + 1
	kindInt
	kindInt8
	kindInt16
	kindInt32
	kindInt64
	kindUint
	kindUint8
	kindUint16
	kindUint32
	kindUint64
	kindFloat32
	kindFloat64
	kindString
	kindEnd
)

var kindTypes = [kindEnd]reflect.Type{
	kindBool:    reflect.TypeFor[bool](),
	kindInt:     reflect.TypeFor[int](),
	kindInt8:    reflect.TypeFor[int8](),
	kindInt16:   reflect.TypeFor[int16](),
	kindInt32:   reflect.TypeFor[int32](),
	kindInt64:   reflect.TypeFor[int64](),
	kindUint:    reflect.TypeFor[uint](),
	kindUint8:   reflect.TypeFor[uint8](),
	kindUint16:  reflect.TypeFor[uint16](),
	kindUint32:  reflect.TypeFor[uint32](),
	kindUint64:  reflect.TypeFor[uint64](),
	kindFloat32: reflect.TypeFor[float32](),
	kindFloat64: reflect.TypeFor[float64](),
	kindString:  reflect.TypeFor[string](),
}

func kindOf(t reflect.Type) (kind, bool) {
	for k := kindBool; k < kindEnd; k++ {
		if kindTypes[k] == t {
			return k, true
		}
	}
	return 0, false
}

// Pack serializes v.
func Pack(v any) ([]byte, error) {
	var body bytes.Buffer
	if err := encode(&body, v); err != nil {
		return nil, err
	}

	if body.Len() <= CompressThreshold {
		out := make([]byte, 0, len(magicPlain)+body.Len())
		out = append(out, magicPlain...)
		return append(out, body.Bytes()...), nil
	}

	var out bytes.Buffer
	out.WriteString(magicCompressed)
	out.Write(binary.AppendUvarint(nil, uint64(body.Len())))
	zw, err := zstd.NewWriter(&out)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(body.Bytes()); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// MustPack is like Pack but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPack(v any) []byte {
	b, err := Pack(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encode(w *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		w.WriteByte(tagNil)
	case bool:
		if x {
			w.WriteByte(tagTrue)
		} else {
			w.WriteByte(tagFalse)
		}
	case int64:
		writeInt(w, x)
	case float64:
		writeFloat(w, x)
	case string:
		w.WriteByte(tagString)
		writeLen(w, len(x))
		w.WriteString(x)
	case []byte:
		w.WriteByte(tagBytes)
		writeLen(w, len(x))
		w.Write(x)
	case []any:
		w.WriteByte(tagList)
		writeLen(w, len(x))
		for _, item := range x {
			if err := encode(w, item); err != nil {
				return err
			}
		}
	case map[string]any:
		w.WriteByte(tagMap)
		writeLen(w, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			writeLen(w, len(k))
			w.WriteString(k)
			if err := encode(w, x[k]); err != nil {
				return err
			}
		}
	default:
		return encodeReflect(w, v)
	}
	return nil
}

// encodeReflect handles the other scalar types, typed slices and typed
// string-keyed maps. Slices and maps whose element is a predeclared scalar
// type (such as []float64 or map[string]uint32) keep that type; any other
// slice or map is packed as a list or map of its elements.
func encodeReflect(w *bytes.Buffer, v any) error {
	rv := reflect.ValueOf(v)
	if k, ok := kindOf(rv.Type()); ok {
		w.WriteByte(tagScalar)
		w.WriteByte(byte(k))
		writeElement(w, k, rv)
		return nil
	}

	switch rv.Kind() {
	case reflect.Slice:
		if k, ok := kindOf(rv.Type().Elem()); ok {
			w.WriteByte(tagArray)
			w.WriteByte(byte(k))
			writeLen(w, rv.Len())
			for i := range rv.Len() {
				writeElement(w, k, rv.Index(i))
			}
			return nil
		}
		return encodeItems(w, rv)
	case reflect.Array:
		return encodeItems(w, rv)
	case reflect.Map:
		if rv.Type().Key() != kindTypes[kindString] {
			return &UnsupportedTypeError{Value: v}
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })

		if k, ok := kindOf(rv.Type().Elem()); ok {
			w.WriteByte(tagTypedMap)
			w.WriteByte(byte(k))
			writeLen(w, len(keys))
			for _, key := range keys {
				writeLen(w, key.Len())
				w.WriteString(key.String())
				writeElement(w, k, rv.MapIndex(key))
			}
			return nil
		}
		m := make(map[string]any, len(keys))
		for _, key := range keys {
			m[key.String()] = rv.MapIndex(key).Interface()
		}
		return encode(w, m)
	}
	return &UnsupportedTypeError{Value: v}
}

func encodeItems(w *bytes.Buffer, rv reflect.Value) error {
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return encode(w, items)
}

// writeElement writes an untagged value of kind k.
func writeElement(w *bytes.Buffer, k kind, rv reflect.Value) {
	switch k {
	case kindBool:
		if rv.Bool() {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case kindInt, kindInt8, kindInt16, kindInt32, kindInt64:
		w.Write(binary.AppendVarint(nil, rv.Int()))
	case kindUint, kindUint8, kindUint16, kindUint32, kindUint64:
		w.Write(binary.AppendUvarint(nil, rv.Uint()))
	case kindFloat32:
		w.Write(binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(rv.Float()))))
	case kindFloat64:
		w.Write(binary.BigEndian.AppendUint64(nil, math.Float64bits(rv.Float())))
	case kindString:
		writeLen(w, rv.Len())
		w.WriteString(rv.String())
	}
}

func writeInt(w *bytes.Buffer, n int64) {
	w.WriteByte(tagInt)
	w.Write(binary.AppendVarint(nil, n))
}

func writeFloat(w *bytes.Buffer, f float64) {
	w.WriteByte(tagFloat)
	w.Write(binary.BigEndian.AppendUint64(nil, math.Float64bits(f)))
}

func writeLen(w *bytes.Buffer, n int) {
	w.Write(binary.AppendUvarint(nil, uint64(n)))
}

// Unpack deserializes a payload produced by Pack.
func Unpack(data []byte) (any, error) {
	switch {
	case bytes.HasPrefix(data, []byte(magicPlain)):
		return decodeBody(data[len(magicPlain):], len(magicPlain))
	case bytes.HasPrefix(data, []byte(magicCompressed)):
		body, err := decompress(data[len(magicCompressed):])
		if err != nil {
			return nil, err
		}
		return decodeBody(body, 0)
	}
	return nil, &DecodeError{Message: "unknown header"}
}

func decompress(data []byte) ([]byte, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, &DecodeError{Offset: len(magicCompressed), Message: "bad length prefix"}
	}
	zr, err := zstd.NewReader(bytes.NewReader(data[n:]))
	if err != nil {
		return nil, &DecodeError{Offset: len(magicCompressed) + n, Message: "zstd", Err: err}
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{Offset: len(magicCompressed) + n, Message: "zstd", Err: err}
	}
	if uint64(len(body)) != size {
		return nil, &DecodeError{Offset: len(magicCompressed), Message: "decompressed length mismatch"}
	}
	return body, nil
}

func decodeBody(body []byte, base int) (any, error) {
	d := &decoder{buf: body, base: base}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, d.fail("trailing bytes")
	}
	return v, nil
}

type decoder struct {
	buf  []byte
	pos  int
	base int
}

func (d *decoder) fail(msg string) error {
	return &DecodeError{Offset: d.base + d.pos, Message: msg}
}

func (d *decoder) value() (any, error) {
	if d.pos >= len(d.buf) {
		return nil, d.fail("unexpected end of payload")
	}
	tag := d.buf[d.pos]
	d.pos++

	switch tag {
	case tagNil:
		return nil, nil
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagInt:
		n, size := binary.Varint(d.buf[d.pos:])
		if size <= 0 {
			return nil, d.fail("bad integer")
		}
		d.pos += size
		return n, nil
	case tagFloat:
		if len(d.buf)-d.pos < 8 {
			return nil, d.fail("short float")
		}
		bits := binary.BigEndian.Uint64(d.buf[d.pos:])
		d.pos += 8
		return math.Float64frombits(bits), nil
	case tagString:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tagBytes:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return bytes.Clone(b), nil
	case tagList:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		items := make([]any, n)
		for i := range items {
			if items[i], err = d.value(); err != nil {
				return nil, err
			}
		}
		return items, nil
	case tagMap:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for range n {
			k, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if m[string(k)], err = d.value(); err != nil {
				return nil, err
			}
		}
		return m, nil
	case tagScalar:
		k, err := d.kind()
		if err != nil {
			return nil, err
		}
		v := reflect.New(kindTypes[k]).Elem()
		if err := d.element(k, v); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	case tagArray:
		k, err := d.kind()
		if err != nil {
			return nil, err
		}
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		arr := reflect.MakeSlice(reflect.SliceOf(kindTypes[k]), n, n)
		for i := range n {
			if err := d.element(k, arr.Index(i)); err != nil {
				return nil, err
			}
		}
		return arr.Interface(), nil
	case tagTypedMap:
		k, err := d.kind()
		if err != nil {
			return nil, err
		}
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		m := reflect.MakeMapWithSize(reflect.MapOf(kindTypes[kindString], kindTypes[k]), n)
		for range n {
			key, err := d.bytes()
			if err != nil {
				return nil, err
			}
			v := reflect.New(kindTypes[k]).Elem()
			if err := d.element(k, v); err != nil {
				return nil, err
			}
			m.SetMapIndex(reflect.ValueOf(string(key)), v)
		}
		return m.Interface(), nil
	}
	d.pos--
	return nil, d.fail("unknown tag")
}

func (d *decoder) kind() (kind, error) {
	if d.pos >= len(d.buf) {
		return 0, d.fail("unexpected end of payload")
	}
	k := kind(d.buf[d.pos])
	if k < kindBool || k >= kindEnd {
		return 0, d.fail("unknown element kind")
	}
	d.pos++
	return k, nil
}

// element reads an untagged value of kind k into dst, which has the Go type
// of k.
func (d *decoder) element(k kind, dst reflect.Value) error {
	switch k {
	case kindBool:
		if d.pos >= len(d.buf) || d.buf[d.pos] > 1 {
			return d.fail("bad bool")
		}
		dst.SetBool(d.buf[d.pos] == 1)
		d.pos++
	case kindInt, kindInt8, kindInt16, kindInt32, kindInt64:
		n, size := binary.Varint(d.buf[d.pos:])
		if size <= 0 {
			return d.fail("bad integer")
		}
		if dst.OverflowInt(n) {
			return d.fail("integer out of range for " + dst.Type().String())
		}
		d.pos += size
		dst.SetInt(n)
	case kindUint, kindUint8, kindUint16, kindUint32, kindUint64:
		n, size := binary.Uvarint(d.buf[d.pos:])
		if size <= 0 {
			return d.fail("bad integer")
		}
		if dst.OverflowUint(n) {
			return d.fail("integer out of range for " + dst.Type().String())
		}
		d.pos += size
		dst.SetUint(n)
	case kindFloat32:
		if len(d.buf)-d.pos < 4 {
			return d.fail("short float")
		}
		dst.SetFloat(float64(math.Float32frombits(binary.BigEndian.Uint32(d.buf[d.pos:]))))
		d.pos += 4
	case kindFloat64:
		if len(d.buf)-d.pos < 8 {
			return d.fail("short float")
		}
		dst.SetFloat(math.Float64frombits(binary.BigEndian.Uint64(d.buf[d.pos:])))
		d.pos += 8
	case kindString:
		b, err := d.bytes()
		if err != nil {
			return err
		}
		dst.SetString(string(b))
	}
	return nil
}

// length reads a uvarint count that cannot exceed the remaining bytes.
func (d *decoder) length() (int, error) {
	n, size := binary.Uvarint(d.buf[d.pos:])
	if size <= 0 {
		return 0, d.fail("bad length")
	}
	if n > uint64(len(d.buf)-d.pos-size) {
		return 0, d.fail("length exceeds payload")
	}
	d.pos += size
	return int(n), nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}
