package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DeclaredTable describes one table created by declare.
type DeclaredTable struct {
	Name    string   `json:"name"`
	Tier    string   `json:"tier"`
	Key     []string `json:"key"`
	Depends []string `json:"depends,omitempty"`
}

// NewDeclareCommand creates the declare command.
func NewDeclareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "declare <catalog-dir>",
		Short: "Create the catalog's tables in the database",
		Long: `Create every table declared in the catalog directory.

Declaring is idempotent: tables that already exist with the same heading
are left alone. A table that exists with a different heading is an error.

Example:
  relpop declare --db ./pipeline.db ./catalog`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   requiresDatabase,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeclare(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDeclare(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	c, err := loadCatalog(f, catalogDir)
	if err != nil {
		return err
	}
	s, err := openStore(f, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(s)

	declared := make([]DeclaredTable, 0, len(c.Names()))
	for _, name := range c.Names() {
		d, _ := c.Decl(name)
		if err := s.Declare(ctx, d.Table); err != nil {
			return fail(f, ExitFailure, ErrCodeDatabase, fmt.Sprintf("failed to declare %s", name), err)
		}
		h, _ := d.Table.Heading()
		declared = append(declared, DeclaredTable{
			Name:    name,
			Tier:    string(d.Tier),
			Key:     h.KeyNames(),
			Depends: d.Depends,
		})
		f.VerboseLog("Declared %s", name)
	}

	if f.Format == "json" {
		return f.Success(map[string]any{"tables": declared})
	}
	for _, t := range declared {
		fmt.Fprintf(f.Writer, "%-20s %-9s key(%s)\n", t.Name, t.Tier, joinNames(t.Key))
	}
	return nil
}
