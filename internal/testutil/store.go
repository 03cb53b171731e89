package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
)

// OpenStore opens a store in a temp dir and declares tables.
// The store is closed when the test ends.
func OpenStore(t testing.TB, tables ...relation.Table) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, tbl := range tables {
		require.NoError(t, s.Declare(context.Background(), tbl))
	}
	return s
}

// Seed inserts rows into t, failing the test on error.
func Seed(t testing.TB, s *store.Store, tbl relation.Table, rows ...store.Row) {
	t.Helper()
	require.NoError(t, s.InsertAll(context.Background(), tbl, rows))
}

// KeyStrings renders keys as canonical JSON for compact assertions.
func KeyStrings[K interface{ String() string }](keys []K) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
