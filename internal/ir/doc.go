// Package ir provides the value model shared by every relpop package.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Key attributes are scalars: IRString, IRInt or IRBool. Floats never
//     identify a row.
//   - Keys are ordered; attribute order follows the relation heading.
//   - Canonical rendering (RFC 8785 JSON, NFC strings) is the only input to
//     key hashing, so the same key hashes identically across runs.
package ir
