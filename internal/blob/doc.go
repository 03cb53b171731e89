// Package blob serializes structured values into the byte payloads stored in
// blob attributes.
//
// A payload is a magic header followed by a tagged encoding of one value.
// Supported values are nil, the predeclared bool, integer, float and string
// types, []byte, slices, arrays and maps keyed by string. Scalars unpack to
// the type they were packed from. Slices and string-keyed maps of a
// predeclared scalar type ([]float64, []uint64, map[string]int32, ...) record
// their element type and unpack to the same Go type; other slices and arrays
// unpack as []any and other maps as map[string]any. Map entries are written
// in key order so equal values pack to equal bytes.
//
// A nil typed slice or map unpacks as an empty one.
//
// Payloads larger than CompressThreshold are zstd-compressed under a separate
// header that records the uncompressed length.
package blob
