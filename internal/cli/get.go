package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	One bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <route> [descriptor.yaml]",
		Short: "Run a read against the configured store",
		Long: `Run a collection read (or, with --one, a single-entity read) for a route
and print the result. A descriptor that asks for a page or offset under a
bounded limit returns a page envelope; otherwise a bare list is returned.

Example:
  crudq get posts testdata/page2.yaml --format json
  crudq get users testdata/by-id.yaml --one`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.One, "one", false, "return a single document (fails when nothing matches)")

	return cmd
}

func runGet(opts *GetOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := LoadEnv(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	d, err := ReadDescriptor(optionalArg(args, 1))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "reading descriptor", err)
	}

	ctx := commandContext(cmd)
	backend, err := env.OpenBackend(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "opening store", err)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			env.Logger.Error("error closing store", "error", closeErr)
		}
	}()

	svc, err := env.Service(backend, args[0])
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "resolving route", err)
	}

	var result any
	if opts.One {
		doc, err := svc.GetOne(ctx, d)
		if err != nil {
			return formatter.FailRequest("get one", err)
		}
		result = doc
	} else {
		many, err := svc.GetMany(ctx, d)
		if err != nil {
			return formatter.FailRequest("get many", err)
		}
		formatter.VerboseLog("Fetched %d document(s)", len(many.Documents()))
		result = many
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	plain, err := toPlain(result)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "rendering result", err)
	}
	return formatter.Success(plain)
}

// toPlain converts v to the generic shape its JSON encoding has, so text
// output renders page envelopes the way JSON does.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// commandContext returns the command's context, or Background when the
// command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
