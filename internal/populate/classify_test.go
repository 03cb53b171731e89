package populate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/testutil"
)

func TestClassify(t *testing.T) {
	conflict := &testutil.Conflict{Op: "insert into Score"}

	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeFatal},
		{"plain", errors.New("boom"), OutcomeFatal},
		{"conflict", conflict, OutcomeRetry},
		{"wrapped conflict", fmt.Errorf("make: %w", conflict), OutcomeRetry},
		{"cancelled", context.Canceled, OutcomeFatal},
		{"cancelled with conflict", errors.Join(context.Canceled, conflict), OutcomeFatal},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), OutcomeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "retry", OutcomeRetry.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}

func TestError_Format(t *testing.T) {
	err := NewRetriesExhaustedError("Score", ir.MustKey(ir.F("subject_id", ir.IRInt(2))), 3, errors.New("locked"))

	assert.Equal(t,
		`RETRIES_EXHAUSTED: Score.MakeTuples failed after 3 attempts, giving up (table=Score, key={"subject_id":2}): locked`,
		err.Error())
	assert.True(t, IsRetriesExhausted(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsConfigError(err))

	cfg := configError("", "table has no make-tuples capability", nil)
	assert.Equal(t, "CONFIGURATION: table has no make-tuples capability", cfg.Error())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("run-1", "run-2")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-2", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
