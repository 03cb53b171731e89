package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/relpop/internal/store"
)

// LoadResult counts the rows inserted per table.
type LoadResult struct {
	Tables map[string]int `json:"tables"`
	Total  int            `json:"total"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <catalog-dir> <rows.yaml>",
		Short: "Insert rows from a YAML file",
		Long: `Insert rows into declared tables from a YAML file.

The file maps table names to lists of rows:

  Subject:
    - {subject_id: 1, species: mouse}
  Session:
    - {subject_id: 1, session_id: 1, trace: [0.1, 0.4, 0.2]}

Tables are loaded in dependency order inside one transaction; any failing
row rolls back the whole file. Nested lists and maps are stored in blob
attributes.

Example:
  relpop load --db ./pipeline.db ./catalog ./rows.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   requiresDatabase,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runLoad(opts *RootOptions, catalogDir, rowsPath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	c, err := loadCatalog(f, catalogDir)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(rowsPath)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeRows, "failed to read rows file", err)
	}
	var rows map[string][]store.Row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return fail(f, ExitCommandError, ErrCodeRows, "failed to parse rows file", err)
	}
	for _, name := range slices.Sorted(maps.Keys(rows)) {
		if _, err := lookupTable(f, c, name); err != nil {
			return err
		}
	}

	s, err := openStore(f, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(s)

	if err := s.StartTransaction(ctx); err != nil {
		return fail(f, ExitFailure, ErrCodeDatabase, "failed to start transaction", err)
	}
	result := LoadResult{Tables: make(map[string]int)}
	for _, name := range c.Names() {
		tableRows, ok := rows[name]
		if !ok {
			continue
		}
		t, _ := c.Table(name)
		if err := s.InsertAll(ctx, t, tableRows); err != nil {
			_ = s.CancelTransaction(ctx)
			return fail(f, ExitFailure, ErrCodeRows, fmt.Sprintf("failed to load %s", name), err)
		}
		result.Tables[name] = len(tableRows)
		result.Total += len(tableRows)
		f.VerboseLog("Loaded %d row(s) into %s", len(tableRows), name)
	}
	if err := s.CommitTransaction(ctx); err != nil {
		return fail(f, ExitFailure, ErrCodeDatabase, "failed to commit rows", err)
	}

	if f.Format == "json" {
		return f.Success(result)
	}
	for _, name := range c.Names() {
		if n, ok := result.Tables[name]; ok {
			fmt.Fprintf(f.Writer, "%-20s %d row(s)\n", name, n)
		}
	}
	return nil
}
