package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/relpop/internal/populate"
)

// PopulateOptions holds flags for the populate command.
type PopulateOptions struct {
	*RootOptions
	Restrict       []string
	SuppressErrors bool
	MaxAttempts    int

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to populate.UUIDv7Generator.
	RunIDs populate.RunIDGenerator
}

// KeyFailure is one suppressed make failure.
type KeyFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// PopulateResult summarizes a populate run.
type PopulateResult struct {
	Table     string       `json:"table"`
	Made      int          `json:"made"`
	Remaining int          `json:"remaining"`
	Total     int          `json:"total"`
	Failures  []KeyFailure `json:"failures,omitempty"`
}

// NewPopulateCommand creates the populate command.
func NewPopulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PopulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "populate <catalog-dir> <table>",
		Short: "Populate an auto-populated table",
		Long: `Run the table's maker for every key not yet populated, each key in its
own transaction. Keys whose transaction hits a database conflict are
retried up to --max-attempts times.

Exit codes:
  0 - All pending keys were populated
  1 - A key failed (or, with --suppress-errors, one or more keys failed)
  2 - Command error (invalid paths, unknown table, bad flags, etc.)

Examples:
  relpop populate --db ./pipeline.db ./catalog Summary
  relpop populate --db ./pipeline.db ./catalog Summary --restrict subject_id=3 --suppress-errors`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   requiresDatabase,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPopulate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Restrict, "restrict", nil, "only keys where attr=value (repeatable)")
	cmd.Flags().BoolVar(&opts.SuppressErrors, "suppress-errors", false, "record make failures and continue with the next key")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", populate.DefaultMaxAttempts, "attempts per key on transaction conflicts")

	return cmd
}

func runPopulate(opts *PopulateOptions, catalogDir, tableName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var popts []populate.Option
	if opts.RunIDs != nil {
		popts = append(popts, populate.WithRunIDGenerator(opts.RunIDs))
	}
	p, s, err := openPopulator(f, opts.RootOptions, catalogDir, tableName, popts...)
	if err != nil {
		return err
	}
	defer closeStore(s)

	restriction, err := restrictionFor(f, p, opts.Restrict)
	if err != nil {
		return err
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping after the current key", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	before, _, err := p.Progress(ctx, restriction)
	if err != nil {
		return fail(f, ExitFailure, codeFor(err), fmt.Sprintf("failed to count keys of %s", tableName), err)
	}

	popOpts := []populate.PopulateOption{populate.WithMaxAttempts(opts.MaxAttempts)}
	if restriction != nil {
		popOpts = append(popOpts, populate.WithRestriction(restriction))
	}
	if opts.SuppressErrors {
		popOpts = append(popOpts, populate.WithSuppressErrors())
	}
	failures, runErr := p.Populate(ctx, popOpts...)

	// Progress runs on the parent context so an interrupted run still reports.
	after, total, err := p.Progress(parentCtx, restriction)
	if err != nil {
		return fail(f, ExitFailure, codeFor(err), fmt.Sprintf("failed to count keys of %s", tableName), err)
	}

	if runErr != nil {
		exit := ExitFailure
		if populate.IsConfigError(runErr) {
			exit = ExitCommandError
		}
		code := codeFor(runErr)
		if code == ErrCodeGeneric && !errors.Is(runErr, context.Canceled) {
			code = ErrCodeMakeFailed
		}
		return fail(f, exit, code, fmt.Sprintf("populate %s stopped with %d key(s) made", tableName, before-after), runErr)
	}

	result := PopulateResult{Table: tableName, Made: before - after, Remaining: after, Total: total}
	for _, r := range failures {
		result.Failures = append(result.Failures, KeyFailure{Key: r.Key.String(), Error: r.Err.Error()})
	}

	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "%s: %d key(s) made, %d of %d remaining\n", tableName, result.Made, result.Remaining, result.Total)
		for _, kf := range result.Failures {
			fmt.Fprintf(f.Writer, "  failed %s: %s\n", kf.Key, kf.Error)
		}
	}

	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d key(s) failed", len(result.Failures)))
	}
	return nil
}
