package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relpop/internal/catalog"
	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
)

const catalogDir = "testdata/catalog"

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// loadedDB declares the test catalog in a fresh database and loads the
// test rows into it.
func loadedDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "pipeline.db")
	_, err := execute(t, &RootOptions{}, "declare", "--db", db, catalogDir)
	require.NoError(t, err)
	_, err = execute(t, &RootOptions{}, "load", "--db", db, catalogDir, "testdata/rows.yaml")
	require.NoError(t, err)
	return db
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "relpop", cmd.Use)

	for _, name := range []string{"declare", "load", "fetch", "pending", "populate", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestPopulateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	populateCmd, _, err := cmd.Find([]string{"populate"})
	require.NoError(t, err)

	maxFlag := populateCmd.Flags().Lookup("max-attempts")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "10", maxFlag.DefValue)
	assert.NotNil(t, populateCmd.Flags().Lookup("suppress-errors"))
	assert.NotNil(t, populateCmd.Flags().Lookup("restrict"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, &RootOptions{}, "declare", "--db", filepath.Join(t.TempDir(), "x.db"), "--format", "yaml", catalogDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, &RootOptions{}, "declare", catalogDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestCatalogErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "x.db")
	empty := t.TempDir()

	tests := []struct {
		name     string
		dir      string
		wantCode string
	}{
		{"missing", "/nonexistent/catalog", ErrCodeNotFound},
		{"empty", empty, ErrCodeNoFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, &RootOptions{}, "declare", "--db", db, "--format", "json", tt.dir)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decodeResponse(t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestDeclare(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pipeline.db")

	out, err := execute(t, &RootOptions{}, "declare", "--db", db, catalogDir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"Subject", "manual", "key(subject_id)"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"Summary", "computed", "key(subject_id,", "session_id)"}, strings.Fields(lines[2]))

	// Declaring twice is a no-op.
	_, err = execute(t, &RootOptions{}, "declare", "--db", db, catalogDir)
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pipeline.db")
	_, err := execute(t, &RootOptions{}, "declare", "--db", db, catalogDir)
	require.NoError(t, err)

	out, err := execute(t, &RootOptions{}, "load", "--db", db, "--format", "json", catalogDir, "testdata/rows.yaml")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{
		"tables": map[string]any{"Subject": float64(2), "Session": float64(3)},
		"total":  float64(5),
	}, resp.Data)
}

func TestLoad_RollsBackOnBadRow(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, &RootOptions{}, "load", "--db", db, catalogDir, "testdata/bad_rows.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load Session")

	// Subject 3 went in with the same transaction and must be gone.
	out, err = execute(t, &RootOptions{}, "fetch", "--db", db, catalogDir, "Subject", "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, `"subject_id":3`)
}

func TestLoad_UnknownTable(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pipeline.db")
	rows := filepath.Join(t.TempDir(), "rows.yaml")
	writeFile(t, rows, "Nope:\n  - {a: 1}\n")

	out, err := execute(t, &RootOptions{}, "load", "--db", db, catalogDir, rows)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E203]: unknown table Nope")
}

func TestFetch_Text(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, &RootOptions{}, "fetch", "--db", db, catalogDir, "Session",
		"--attr", "rig", "--order", "subject_id,session_id", "--limit", "2", "--offset", "1")
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"subject_id", "session_id", "rig"},
		{"1", "2", "B"},
		{"2", "1", "A"},
	}, tableCells(out))
}

func TestFetch_JSONWithRename(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, &RootOptions{}, "fetch", "--db", db, catalogDir, "Session",
		"--rename", "setup=rig", "--attr", "trace", "--order", "setup,session_id", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string
		Data   struct {
			Table   string
			Records []map[string]any
		}
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Session", resp.Data.Table)
	require.Len(t, resp.Data.Records, 3)

	first := resp.Data.Records[0]
	assert.Equal(t, "A", first["setup"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, first["trace"])
	assert.NotContains(t, first, "rig")
	assert.Equal(t, "B", resp.Data.Records[2]["setup"])
}

func TestFetch_Errors(t *testing.T) {
	db := loadedDB(t)

	tests := []struct {
		name     string
		args     []string
		wantExit int
		wantCode string
	}{
		{"unknown table", []string{"Nope"}, ExitCommandError, ErrCodeUnknownTable},
		{"unknown attribute", []string{"Session", "--attr", "nope"}, ExitCommandError, ErrCodeArgument},
		{"unknown order", []string{"Session", "--order", "nope"}, ExitCommandError, ErrCodeArgument},
		{"bad rename", []string{"Session", "--rename", "setup"}, ExitCommandError, ErrCodeArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"fetch", "--db", db, "--format", "json", catalogDir}, tt.args...)
			out, err := execute(t, &RootOptions{}, args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			resp := decodeResponse(t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestPending(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, &RootOptions{}, "pending", "--db", db, catalogDir, "Summary")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		`{"session_id":1,"subject_id":1}`,
		`{"session_id":2,"subject_id":1}`,
		`{"session_id":1,"subject_id":2}`,
		"3 of 3 key(s) pending",
	}, "\n")+"\n", out)

	out, err = execute(t, &RootOptions{}, "pending", "--db", db, "--format", "json", catalogDir, "Summary",
		"--restrict", "subject_id=1", "--restrict", "session_id=2")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, map[string]any{
		"table":     "Summary",
		"keys":      []any{`{"session_id":2,"subject_id":1}`},
		"remaining": float64(1),
		"total":     float64(1),
	}, resp.Data)
}

func TestPending_Errors(t *testing.T) {
	db := loadedDB(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"manual table", []string{"Subject"}, ErrCodeDeclaration},
		{"bad restriction", []string{"Summary", "--restrict", "subject_id"}, ErrCodeArgument},
		{"unknown restriction attribute", []string{"Summary", "--restrict", "species=mouse"}, ErrCodeArgument},
		{"restriction type", []string{"Summary", "--restrict", "subject_id=one"}, ErrCodeArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"pending", "--db", db, "--format", "json", catalogDir}, tt.args...)
			out, err := execute(t, &RootOptions{}, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decodeResponse(t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestPopulate(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, &RootOptions{}, "populate", "--db", db, catalogDir, "Summary", "--restrict", "subject_id=2")
	require.NoError(t, err)
	assert.Equal(t, "Summary: 1 key(s) made, 0 of 1 remaining\n", out)

	out, err = execute(t, &RootOptions{}, "populate", "--db", db, "--format", "json", catalogDir, "Summary")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, map[string]any{
		"table":     "Summary",
		"made":      float64(2),
		"remaining": float64(0),
		"total":     float64(3),
	}, resp.Data)

	out, err = execute(t, &RootOptions{}, "fetch", "--db", db, catalogDir, "Summary", "--attr", "gain", "--order", "subject_id,session_id")
	require.NoError(t, err)
	cells := tableCells(out)
	require.Len(t, cells, 4)
	assert.Equal(t, []string{"1", "1", "1.50"}, cells[1])
	assert.Equal(t, []string{"2", "1", "3"}, cells[3])
}

func failingMakers(failOn ir.IRValue) catalog.Makers {
	return catalog.Makers{
		"copy": func(ctx context.Context, mc catalog.MakeContext, key ir.Key) error {
			if v, _ := key.Get("session_id"); v == failOn {
				return errors.New("rig offline")
			}
			return catalog.CopyMaker(ctx, mc, key)
		},
	}
}

func TestPopulate_SuppressErrors(t *testing.T) {
	db := loadedDB(t)
	opts := &RootOptions{Makers: failingMakers(ir.IRInt(2))}

	out, err := execute(t, opts, "populate", "--db", db, "--format", "json", catalogDir, "Summary", "--suppress-errors")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 key(s) failed")

	resp := decodeResponse(t, out)
	assert.Equal(t, map[string]any{
		"table":     "Summary",
		"made":      float64(2),
		"remaining": float64(1),
		"total":     float64(3),
		"failures": []any{map[string]any{
			"key":   `{"session_id":2,"subject_id":1}`,
			"error": "rig offline",
		}},
	}, resp.Data)
}

func TestPopulate_StopsOnError(t *testing.T) {
	db := loadedDB(t)
	opts := &RootOptions{Makers: failingMakers(ir.IRInt(2))}

	out, err := execute(t, opts, "populate", "--db", db, catalogDir, "Summary")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E303]: populate Summary stopped with 1 key(s) made")
	assert.Contains(t, out, "rig offline")
}

func TestPopulate_BadMaxAttempts(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, &RootOptions{}, "populate", "--db", db, "--format", "json", catalogDir, "Summary", "--max-attempts", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfiguration, resp.Error.Code)
}

func TestParseRestrictions(t *testing.T) {
	h := relation.MustHeading(
		relation.Key("subject_id", relation.TypeInt),
		relation.Key("valid", relation.TypeBool),
		relation.Key("day", relation.TypeDate),
		relation.Attr("rig", relation.TypeString),
		relation.Attr("weight", relation.TypeDecimal),
		relation.Attr("ratio", relation.TypeFloat),
	)

	tests := []struct {
		name    string
		specs   []string
		want    relation.Predicate
		wantErr string
	}{
		{name: "none", specs: nil, want: nil},
		{name: "int", specs: []string{"subject_id=7"}, want: relation.Equals{Attr: "subject_id", Value: ir.IRInt(7)}},
		{name: "bool", specs: []string{"valid=true"}, want: relation.Equals{Attr: "valid", Value: ir.IRBool(true)}},
		{name: "string keeps spaces", specs: []string{"rig= A "}, want: relation.Equals{Attr: "rig", Value: ir.IRString(" A ")}},
		{name: "several", specs: []string{"subject_id=1", "day=2024-01-02"}, want: relation.And{Predicates: []relation.Predicate{
			relation.Equals{Attr: "subject_id", Value: ir.IRInt(1)},
			relation.Equals{Attr: "day", Value: ir.IRString("2024-01-02")},
		}}},
		{name: "no equals", specs: []string{"subject_id"}, wantErr: "attr=value"},
		{name: "unknown", specs: []string{"nope=1"}, wantErr: "unknown attribute nope"},
		{name: "bad int", specs: []string{"subject_id=x"}, wantErr: "int attribute"},
		{name: "decimal reduced", specs: []string{"weight= 1.50"}, want: relation.Equals{Attr: "weight", Value: ir.IRString("1.5")}},
		{name: "bad decimal", specs: []string{"weight=lots"}, wantErr: "decimal attribute"},
		{name: "float", specs: []string{"ratio=0.5"}, wantErr: "cannot restrict on float"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRestrictions(h, tt.specs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
