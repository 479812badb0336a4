package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// CheckResult summarizes a loaded configuration.
type CheckResult struct {
	Driver   string          `json:"driver"`
	Entities []EntitySummary `json:"entities"`
	Routes   []RouteSummary  `json:"routes"`
}

// EntitySummary describes one schema entity.
type EntitySummary struct {
	Name        string   `json:"name"`
	Collection  string   `json:"collection"`
	PrimaryKeys []string `json:"primaryKeys"`
	Fields      []string `json:"fields"`
	Relations   []string `json:"relations,omitempty"`
}

// RouteSummary describes one route's policy.
type RouteSummary struct {
	Name     string   `json:"name"`
	Entity   string   `json:"entity"`
	Joins    []string `json:"joins,omitempty"`
	Eager    []string `json:"eager,omitempty"`
	Limit    int      `json:"limit"`
	MaxLimit int      `json:"maxLimit"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate config, schema and routes",
		Long: `Load the config, the CUE entity schema and the routes file, and check
every route against the schema: the entity exists, static filters, sort keys
and field policies name its columns, and every join path resolves.

No store is opened.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	env, err := LoadEnv(opts, formatter)
	if err != nil {
		return err
	}

	result := CheckResult{Driver: env.Config.Store.Driver}
	for _, name := range env.Graph.Names() {
		e := env.Graph.MustEntity(name)
		result.Entities = append(result.Entities, EntitySummary{
			Name:        e.Name,
			Collection:  e.Collection,
			PrimaryKeys: e.PrimaryKeys,
			Fields:      e.FieldNames(),
			Relations:   e.RelationNames(),
		})
	}
	for _, name := range env.Routes.Names() {
		o := env.Routes[name]
		joins := make([]string, 0, len(o.Query.Join))
		for path := range o.Query.Join {
			joins = append(joins, path)
		}
		sort.Strings(joins)
		result.Routes = append(result.Routes, RouteSummary{
			Name:     name,
			Entity:   o.Entity,
			Joins:    joins,
			Eager:    o.EagerJoins(),
			Limit:    o.Query.Limit,
			MaxLimit: o.Query.MaxLimit,
		})
		formatter.VerboseLog("Checked route: %s", name)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %d entit(ies), %d route(s) OK (store: %s)\n\n",
		len(result.Entities), len(result.Routes), result.Driver)
	fmt.Fprintln(w, "Entities:")
	for _, e := range result.Entities {
		fmt.Fprintf(w, "  %s -> %s (%d fields)", e.Name, e.Collection, len(e.Fields))
		if len(e.Relations) > 0 {
			fmt.Fprintf(w, " relations: %s", strings.Join(e.Relations, ", "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "\nRoutes:")
	for _, r := range result.Routes {
		fmt.Fprintf(w, "  %s: %s", r.Name, r.Entity)
		if len(r.Joins) > 0 {
			fmt.Fprintf(w, " joins: %s", strings.Join(r.Joins, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}
