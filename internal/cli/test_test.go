package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func TestTestCommand_NoDatabaseNeeded(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", filepath.Join(scenarioDir, "copy_summary.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ copy_summary\n")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_Directory(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", scenarioDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 scenario(s) failed")

	assert.Contains(t, out, "✓ copy_summary\n")
	assert.Contains(t, out, "✗ wrong_count\n")
	assert.Contains(t, out, "  assertions[0]: Assertion failed: row_count\n")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", "--format", "json", scenarioDir)
	require.Error(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)

	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(1), data["failed"])
	scenarios := data["scenarios"].([]any)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "copy_summary", scenarios[0].(map[string]any)["name"])
	assert.Equal(t, true, scenarios[0].(map[string]any)["pass"])
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", scenarioDir, "--filter", "copy_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, &RootOptions{}, "test", scenarioDir, "--filter", "nothing*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_Golden(t *testing.T) {
	file := filepath.Join(scenarioDir, "copy_summary.yaml")

	_, err := execute(t, &RootOptions{}, "test", file, "--golden", "testdata/golden")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy_summary.golden"), []byte(`{"scenario": "copy_summary"}`), 0o644))
	out, err := execute(t, &RootOptions{}, "test", file, "--golden", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")

	_, err = execute(t, &RootOptions{}, "test", file, "--golden", dir, "--update")
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("testdata", "golden", "copy_summary.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "copy_summary.golden"))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	_, err = execute(t, &RootOptions{}, "test", file, "--golden", dir)
	require.NoError(t, err)
}

func TestTestCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"missing path", []string{"test", "testdata/nope"}, ErrCodeNotFound},
		{"update without golden", []string{"test", scenarioDir, "--update"}, ErrCodeArgument},
		{"bad filter", []string{"test", scenarioDir, "--filter", "["}, ErrCodeArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--format", "json")
			out, err := execute(t, &RootOptions{}, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decodeResponse(t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestTestCommand_LoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: broken\nsurprise: true\n"), 0o644))

	out, err := execute(t, &RootOptions{}, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml\n")
	assert.Contains(t, out, "failed to load scenario")
}
