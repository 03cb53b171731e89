package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relpop/internal/populate"
	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Restrict []string
}

// PendingResult lists the keys a populate would process.
type PendingResult struct {
	Table     string   `json:"table"`
	Keys      []string `json:"keys"`
	Remaining int      `json:"remaining"`
	Total     int      `json:"total"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending <catalog-dir> <table>",
		Short: "List keys not yet populated",
		Long: `List the primary keys of an auto-populated table that populate would
process: keys of the join of its dependencies not yet in the table.

Examples:
  relpop pending --db ./pipeline.db ./catalog Summary
  relpop pending --db ./pipeline.db ./catalog Summary --restrict subject_id=3`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   requiresDatabase,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Restrict, "restrict", nil, "only keys where attr=value (repeatable)")

	return cmd
}

func runPending(opts *PendingOptions, catalogDir, tableName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	p, s, err := openPopulator(f, opts.RootOptions, catalogDir, tableName)
	if err != nil {
		return err
	}
	defer closeStore(s)

	restriction, err := restrictionFor(f, p, opts.Restrict)
	if err != nil {
		return err
	}

	keys, err := p.Pending(ctx, restriction)
	if err != nil {
		return fail(f, ExitFailure, codeFor(err), fmt.Sprintf("failed to list pending keys of %s", tableName), err)
	}
	remaining, total, err := p.Progress(ctx, restriction)
	if err != nil {
		return fail(f, ExitFailure, codeFor(err), fmt.Sprintf("failed to count keys of %s", tableName), err)
	}

	result := PendingResult{Table: tableName, Keys: make([]string, len(keys)), Remaining: remaining, Total: total}
	for i, k := range keys {
		result.Keys[i] = k.String()
	}

	if f.Format == "json" {
		return f.Success(result)
	}
	for _, k := range result.Keys {
		fmt.Fprintln(f.Writer, k)
	}
	fmt.Fprintf(f.Writer, "%d of %d key(s) pending\n", remaining, total)
	return nil
}

// openPopulator loads the catalog, opens the store and builds a populator
// for the named auto-populated table. The caller closes the store.
func openPopulator(f *OutputFormatter, opts *RootOptions, catalogDir, tableName string, popts ...populate.Option) (*populate.Populator, *store.Store, error) {
	c, err := loadCatalog(f, catalogDir)
	if err != nil {
		return nil, nil, err
	}
	if _, err := lookupTable(f, c, tableName); err != nil {
		return nil, nil, err
	}
	s, err := openStore(f, opts.Database)
	if err != nil {
		return nil, nil, err
	}

	tbl, err := c.Auto(tableName, s, opts.makers())
	if err != nil {
		closeStore(s)
		return nil, nil, fail(f, ExitCommandError, codeFor(err), fmt.Sprintf("cannot populate %s", tableName), err)
	}
	p, err := populate.New(s, tbl, popts...)
	if err != nil {
		closeStore(s)
		return nil, nil, fail(f, ExitCommandError, codeFor(err), fmt.Sprintf("cannot populate %s", tableName), err)
	}
	return p, s, nil
}

func restrictionFor(f *OutputFormatter, p *populate.Populator, specs []string) (relation.Predicate, error) {
	h, err := p.PopulateRelation().Heading()
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeConfiguration, "invalid populate relation", err)
	}
	predicate, err := parseRestrictions(h, specs)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeArgument, "invalid restriction", err)
	}
	return predicate, nil
}
