package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SeedResult reports inserted documents.
type SeedResult struct {
	Route      string `json:"route"`
	Collection string `json:"collection"`
	Count      int    `json:"count"`
	IDs        []any  `json:"ids"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <route> <docs.yaml>",
		Short: "Insert documents through a route",
		Long: `Insert the documents of a YAML file (a list, or a single mapping) through
a route's create path. Empty documents are dropped; documents without a
primary key get a generated one.

Example:
  crudq seed posts testdata/posts.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runSeed(opts *RootOptions, routeName, docsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	env, err := LoadEnv(opts, formatter)
	if err != nil {
		return err
	}
	docs, err := ReadDocuments(docsPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "reading documents", err)
	}
	formatter.VerboseLog("Read %d document(s) from %s", len(docs), docsPath)

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

	svc, err := env.Service(backend, routeName)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "resolving route", err)
	}
	created, err := svc.CreateMany(ctx, nil, docs)
	if err != nil {
		return formatter.FailRequest("seeding", err)
	}

	result := SeedResult{
		Route:      routeName,
		Collection: svc.Entity().Collection,
		Count:      len(created),
		IDs:        make([]any, 0, len(created)),
	}
	pk := svc.Entity().PrimaryKey()
	for _, doc := range created {
		result.IDs = append(result.IDs, doc[pk])
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Seeded %d document(s) into %s\n", result.Count, result.Collection)
	return nil
}
