package harness

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relpop/internal/catalog"
	"github.com/roach88/relpop/internal/ir"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"copy_summary", "retries_and_failures", "exhausted"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_FailedExpectations(t *testing.T) {
	s := loadTestScenario(t, "retries_and_failures")
	two := 2
	s.Steps[1].Expect = &StepExpect{Made: &two}
	s.Assertions = append(s.Assertions,
		Assertion{Type: AssertRowCount, Table: "Summary", Count: 1},
		Assertion{Type: AssertRows, Table: "Summary", Where: map[string]any{"subject_id": 2}, Expect: map[string]any{"gain": "2"}},
	)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "steps[1]: expected 2 key(s) made, got 1")
	assert.Contains(t, result.Errors[1], "Assertion failed: row_count")
	assert.Contains(t, result.Errors[1], "Expected: 1 row(s) in Summary")
	assert.Contains(t, result.Errors[1], "Actual: 3 row(s)")
	assert.Contains(t, result.Errors[2], "Assertion failed: rows")
	assert.Contains(t, result.Errors[2], "Expected: gain = 2 in Summary")
}

func TestRun_UnexpectedStepError(t *testing.T) {
	s := loadTestScenario(t, "exhausted")
	s.Steps[0].Expect = nil

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "steps[0]: populate Summary failed: RETRIES_EXHAUSTED")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := loadTestScenario(t, "copy_summary")
	s.Steps[1].Expect = &StepExpect{Error: "RETRIES_EXHAUSTED"}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, `steps[1]: expected populate Summary to fail with "RETRIES_EXHAUSTED", it completed`)
}

func TestRun_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{
			name:    "unknown setup table",
			mutate:  func(s *Scenario) { s.Setup["Nope"] = []map[string]any{{"a": 1}} },
			wantErr: "unknown table Nope",
		},
		{
			name: "bad setup row",
			mutate: func(s *Scenario) {
				s.Setup["Session"] = append(s.Setup["Session"], map[string]any{"subject_id": 1, "session_id": 9, "gain": "lots"})
			},
			wantErr: "Session row 3",
		},
		{
			name:    "manual table step",
			mutate:  func(s *Scenario) { s.Steps[0].Populate = "Subject" },
			wantErr: "step 0",
		},
		{
			name:    "float in script key",
			mutate:  func(s *Scenario) { s.Steps[0].Fail = []KeyScript{{Key: map[string]any{"subject_id": 1.5}}} },
			wantErr: "floats are not valid key values",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadTestScenario(t, "copy_summary")
			tt.mutate(s)
			_, err := Run(context.Background(), s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_WithMakers(t *testing.T) {
	s := loadTestScenario(t, "copy_summary")
	s.Steps = s.Steps[:1]
	s.Steps[0].Expect = &StepExpect{Error: "lab closed"}
	s.Assertions = []Assertion{
		{Type: AssertRowCount, Table: "Summary", Count: 0},
		{Type: AssertPending, Table: "Summary", Count: 3},
		{Type: AssertPending, Table: "Summary", Where: map[string]any{"subject_id": 1}, Count: 2},
	}

	var calls []ir.Key
	makers := catalog.Makers{
		"copy": func(ctx context.Context, mc catalog.MakeContext, key ir.Key) error {
			calls = append(calls, key)
			return errors.New("lab closed")
		},
	}

	result, err := Run(context.Background(), s, WithMakers(makers))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, calls, 1, "a fatal callback error stops the step")
	require.Len(t, result.Trace, 1)
	assert.Equal(t, OutcomeFailed, result.Trace[0].Outcome)
	assert.Equal(t, "lab closed", result.Trace[0].Error)
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"nil both", nil, nil, true},
		{"nil expected", nil, int64(1), false},
		{"int widths", 3, int64(3), true},
		{"int mismatch", 3, int64(4), false},
		{"float", 1.5, 1.5, true},
		{"float from int", 2, 2.0, true},
		{"string", "A", "A", true},
		{"bool", true, true, true},
		{"nested blob", []any{1, map[string]any{"a": 2}}, []any{int64(1), map[string]any{"a": int64(2)}}, true},
		{"nested mismatch", []any{1}, []any{int64(1), int64(2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestMatchKey(t *testing.T) {
	key := ir.MustKey(ir.F("subject_id", ir.IRInt(1)), ir.F("session_id", ir.IRInt(2)))

	assert.True(t, matchKey(key, ir.IRObject{}))
	assert.True(t, matchKey(key, ir.IRObject{"session_id": ir.IRInt(2)}))
	assert.False(t, matchKey(key, ir.IRObject{"session_id": ir.IRInt(1)}))
	assert.False(t, matchKey(key, ir.IRObject{"rig": ir.IRString("A")}))
	assert.False(t, matchKey(key, ir.IRObject{"session_id": ir.IRString("2")}))
}
