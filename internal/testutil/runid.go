package testutil

// FixedRunID generates the same run id every time.
//
// Unlike populate.FixedGenerator, which returns ids in sequence and panics
// when they run out, FixedRunID never runs out. It suits tests that populate
// an unknown number of times and only need stable log output.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run id generator.
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunID) Generate() string {
	return g.id
}
