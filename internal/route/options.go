// Package route holds the administrator-configured policy of each endpoint:
// which entity it serves, static filters, field and join policy, default sort
// and pagination limits, and the write-path flags.
//
// Options are loaded from YAML once at startup and never modified afterwards.
package route

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crudq/internal/query"
)

// Options is the policy of one route.
type Options struct {
	Entity string        `yaml:"entity" validate:"required"`
	Query  QueryOptions  `yaml:"query"`
	Routes RoutesOptions `yaml:"routes"`
}

// QueryOptions is the read policy.
type QueryOptions struct {
	// Filter is ANDed into every query on the route.
	Filter StaticFilter `yaml:"filter" validate:"dive"`

	// Join maps a relation path to its policy. Eager relations are populated
	// on every read.
	Join map[string]JoinOptions `yaml:"join" validate:"dive"`

	// Sort is used when the caller sends none.
	Sort []query.Sort `yaml:"sort" validate:"dive"`

	Fields FieldPolicy `yaml:"fields"`

	// Persist fields are always selected, e.g. ownership columns.
	Persist []string `yaml:"persist"`

	// Limit is the default page size; 0 means unbounded.
	Limit int `yaml:"limit" validate:"gte=0"`

	// MaxLimit caps any requested or default limit; 0 means no cap.
	MaxLimit int `yaml:"maxLimit" validate:"gte=0"`
}

// FieldPolicy restricts selectable columns. Exclude wins over Allow.
type FieldPolicy struct {
	Allow   []string `yaml:"allow"`
	Exclude []string `yaml:"exclude"`
}

// JoinOptions is the policy for one relation path.
type JoinOptions struct {
	Eager   bool     `yaml:"eager"`
	Allow   []string `yaml:"allow"`
	Exclude []string `yaml:"exclude"`
}

// Policy returns the join's field policy.
func (j JoinOptions) Policy() FieldPolicy {
	return FieldPolicy{Allow: j.Allow, Exclude: j.Exclude}
}

// RoutesOptions are the write-path flags.
type RoutesOptions struct {
	UpdateOneBase  WriteOptions  `yaml:"updateOneBase"`
	ReplaceOneBase WriteOptions  `yaml:"replaceOneBase"`
	DeleteOneBase  DeleteOptions `yaml:"deleteOneBase"`
}

// WriteOptions controls update and replace.
type WriteOptions struct {
	// AllowParamsOverride lets the payload override route params.
	AllowParamsOverride bool `yaml:"allowParamsOverride"`

	// ReturnShallow skips the re-fetch with joins after the write.
	ReturnShallow bool `yaml:"returnShallow"`
}

// DeleteOptions controls delete.
type DeleteOptions struct {
	ReturnDeleted bool `yaml:"returnDeleted"`
}

// EagerJoins returns the eager relation paths in sorted order.
func (o *Options) EagerJoins() []string {
	var out []string
	for path, j := range o.Query.Join {
		if j.Eager {
			out = append(out, path)
		}
	}
	slices.Sort(out)
	return out
}

// StaticFilter is a route filter. In YAML it is either a list of
// {field, operator, value} entries or a plain mapping in key order. In the
// mapping form a value whose keys are operators ({views: {$gte: 10}}) yields
// one entry per operator; any other value is read as equality.
type StaticFilter []query.FilterCond

// UnmarshalYAML accepts both the list and the mapping form.
func (f *StaticFilter) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var conds []query.FilterCond
		if err := node.Decode(&conds); err != nil {
			return err
		}
		*f = conds
		return nil
	case yaml.MappingNode:
		conds := make([]query.FilterCond, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			field, valueNode := node.Content[i].Value, node.Content[i+1]
			if isOperatorMapping(valueNode) {
				for j := 0; j+1 < len(valueNode.Content); j += 2 {
					op := query.Operator(valueNode.Content[j].Value)
					if !query.AllowedOperators[op] {
						return fmt.Errorf("line %d: operator %s on %q is not allowed", valueNode.Content[j].Line, op, field)
					}
					var value any
					if err := valueNode.Content[j+1].Decode(&value); err != nil {
						return err
					}
					conds = append(conds, query.FilterCond{Field: field, Operator: op, Value: value})
				}
				continue
			}
			var value any
			if err := valueNode.Decode(&value); err != nil {
				return err
			}
			conds = append(conds, query.FilterCond{
				Field:    field,
				Operator: query.OpEq,
				Value:    value,
			})
		}
		*f = conds
		return nil
	default:
		return fmt.Errorf("line %d: filter must be a list or a mapping", node.Line)
	}
}

// Filter groups the entries by field. A missing operator means equality.
func (f StaticFilter) Filter() query.Filter {
	out := query.Filter{}
	for _, c := range f {
		if c.Field == "" {
			continue
		}
		op := c.Operator
		if op == "" {
			op = query.OpEq
		}
		if out[c.Field] == nil {
			out[c.Field] = query.Condition{}
		}
		out[c.Field][op] = c.Value
	}
	return out
}

// isOperatorMapping reports whether n is a non-empty mapping whose keys all
// start with "$".
func isOperatorMapping(n *yaml.Node) bool {
	if n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return false
	}
	for i := 0; i < len(n.Content); i += 2 {
		if !strings.HasPrefix(n.Content[i].Value, "$") {
			return false
		}
	}
	return true
}
