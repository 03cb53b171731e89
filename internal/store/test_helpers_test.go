package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/relpop/internal/relation"
)

var (
	subject = relation.MustTable("Subject",
		relation.Key("subject_id", relation.TypeInt),
		relation.Attr("species", relation.TypeString),
	)
	measurement = relation.MustTable("Measurement",
		relation.Key("subject_id", relation.TypeInt),
		relation.Key("valid", relation.TypeBool),
		relation.Attr("taken", relation.TypeDate),
		relation.Attr("weight", relation.TypeDecimal),
		relation.Attr("ratio", relation.TypeFloat),
		relation.Attr("trace", relation.TypeBlob),
	)
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
