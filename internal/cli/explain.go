package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/crudq/internal/canonical"
	"github.com/roach88/crudq/internal/crud"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	One bool
}

// ExplainResult is an assembled query with its fingerprint.
type ExplainResult struct {
	Route       string          `json:"route"`
	Many        bool            `json:"many"`
	Fingerprint string          `json:"fingerprint"`
	Query       json.RawMessage `json:"query"`
}

// offline satisfies crud.Store for commands that only assemble queries.
// Calling any store method panics.
type offline struct{ crud.Store }

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <route> [descriptor.yaml]",
		Short: "Print the query a descriptor assembles to",
		Long: `Assemble a request descriptor against a route's policy and print the
resulting query as canonical JSON together with its fingerprint.

Without a descriptor file the empty request is explained. No store is opened.

Example:
  crudq explain posts testdata/page2.yaml
  crudq explain posts --one`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.One, "one", false, "assemble a single-entity lookup instead of a collection query")

	return cmd
}

func runExplain(opts *ExplainOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := LoadEnv(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	d, err := ReadDescriptor(optionalArg(args, 1))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "reading descriptor", err)
	}

	svc, err := env.Service(&Backend{collection: func(string) crud.Store { return offline{} }}, args[0])
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "resolving route", err)
	}
	q, err := svc.Assemble(d, !opts.One)
	if err != nil {
		return formatter.FailRequest("assembling query", err)
	}

	body, err := canonical.Marshal(q)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "encoding query", err)
	}
	fp, err := crud.Fingerprint(q)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "fingerprinting query", err)
	}
	result := ExplainResult{Route: args[0], Many: !opts.One, Fingerprint: fp, Query: body}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "encoding query", err)
	}
	fmt.Fprintf(formatter.Writer, "Route:       %s\n", result.Route)
	fmt.Fprintf(formatter.Writer, "Many:        %t\n", result.Many)
	fmt.Fprintf(formatter.Writer, "Fingerprint: %s\n\n", result.Fingerprint)
	fmt.Fprintln(formatter.Writer, pretty.String())
	return nil
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
