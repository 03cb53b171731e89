package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/relpop/internal/fetch"
	"github.com/roach88/relpop/internal/relation"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Attrs   []string
	Renames []string
	Order   []string
	Limit   int
	Offset  int
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <catalog-dir> <table>",
		Short: "Print rows of a table",
		Long: `Fetch rows of a table with blob attributes decoded.

The primary key is always included. With no --attr or --rename every
attribute is fetched. Use --attr '*' to keep every attribute alongside
renames. Ordering names refer to the fetched (renamed) attributes.

Examples:
  relpop fetch --db ./pipeline.db ./catalog Session
  relpop fetch --db ./pipeline.db ./catalog Session --attr rig --order session_id --limit 10
  relpop fetch --db ./pipeline.db ./catalog Session --rename setup=rig --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   requiresDatabase,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Attrs, "attr", nil, "attributes to fetch besides the primary key")
	cmd.Flags().StringSliceVar(&opts.Renames, "rename", nil, "rename an attribute (new=old)")
	cmd.Flags().StringSliceVar(&opts.Order, "order", nil, "attributes to order by, ascending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of rows (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip (only with --limit)")

	return cmd
}

func runFetch(opts *FetchOptions, catalogDir, tableName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	proj := relation.Projection{Attrs: opts.Attrs}
	for _, r := range opts.Renames {
		rename, err := relation.ParseRename(r)
		if err != nil {
			return fail(f, ExitCommandError, ErrCodeArgument, "invalid rename", err)
		}
		proj.Renames = append(proj.Renames, rename)
	}

	c, err := loadCatalog(f, catalogDir)
	if err != nil {
		return err
	}
	t, err := lookupTable(f, c, tableName)
	if err != nil {
		return err
	}
	s, err := openStore(f, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(s)

	fetcher := fetch.New(s, t)
	if len(opts.Order) > 0 {
		fetcher.OrderBy(opts.Order...)
	}
	if opts.Limit > 0 {
		fetcher.Limit(opts.Limit, opts.Offset)
	}
	if f.Verbose {
		if query, _, err := fetcher.SQL(proj); err == nil {
			f.VerboseLog("%s", query)
		}
	}

	records, err := fetcher.Fetch(ctx, proj)
	if err != nil {
		code := codeFor(err)
		exit := ExitFailure
		if code == ErrCodeArgument {
			exit = ExitCommandError
		}
		return fail(f, exit, code, fmt.Sprintf("failed to fetch %s", tableName), err)
	}

	if f.Format == "json" {
		return f.Success(map[string]any{"table": tableName, "records": records})
	}
	return writeRecords(f.Writer, records)
}

const tabWidth = 4

// writeRecords prints records as a bordered table with a header row.
func writeRecords(w io.Writer, records []fetch.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}
	rows := make([][]string, len(records))
	for r, rec := range records {
		values := rec.Values()
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		rows[r] = cells
	}
	renderTable(w, records[0].Heading().Names(), rows)
	return nil
}

func renderTable(w io.Writer, cols []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(cols)
	for _, row := range rows {
		for i, cell := range row {
			row[i] = expandTabs(cell)
		}
		table.Append(row)
	}
	table.Render()
}

// expandTabs replaces tabs with spaces; tablewriter measures a tab as
// zero columns. Newlines are left in place and become multi-line cells.
func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		col := 0
		for _, r := range line {
			if r == '\t' {
				n := tabWidth - col%tabWidth
				b.WriteString(strings.Repeat(" ", n))
				col += n
				continue
			}
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case *apd.Decimal:
		return v.String()
	case string:
		return v
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}
