package route

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/crudq/internal/query"
	"github.com/roach88/crudq/internal/schema"
)

// File is the on-disk layout of a routes file.
//
//	routes:
//	  posts:
//	    entity: Post
//	    query:
//	      filter: {status: published}
//	      join:
//	        author: {eager: true, exclude: [password]}
type File struct {
	Routes map[string]*Options `yaml:"routes"`
}

// Table is the set of named routes.
type Table map[string]*Options

// Names returns the route names, sorted.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get looks up a route by name.
func (t Table) Get(name string) (*Options, error) {
	o, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("unknown route %q", name)
	}
	return o, nil
}

// Load reads and validates a routes file.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates routes YAML. Unknown keys are rejected.
func Parse(data []byte) (Table, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing routes: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("parsing routes: no routes declared")
	}
	t := Table(f.Routes)
	for _, name := range t.Names() {
		if t[name] == nil {
			return nil, fmt.Errorf("route %s: empty definition", name)
		}
		if err := Validate(t[name]); err != nil {
			return nil, fmt.Errorf("route %s: %w", name, err)
		}
	}
	return t, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural rules of one route: required entity,
// well-formed filters and sort keys, non-negative limits, and a default
// limit that does not exceed the cap.
func Validate(o *Options) error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid options: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if o.Query.MaxLimit > 0 && o.Query.Limit > o.Query.MaxLimit {
		return fmt.Errorf("invalid options: limit %d exceeds maxLimit %d", o.Query.Limit, o.Query.MaxLimit)
	}
	return nil
}

// Check verifies a route against the schema graph: the entity exists, every
// column and relation path the policy names is declared, and static filter
// operands fit their operators.
func Check(o *Options, g *schema.Graph) error {
	entity, ok := g.Entity(o.Entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", o.Entity)
	}

	var problems []string
	checkFields := func(what string, fields []string, e *schema.Entity) {
		for _, f := range fields {
			if !e.HasField(f) {
				problems = append(problems, fmt.Sprintf("%s: %s has no field %q", what, e.Name, f))
			}
		}
	}

	for _, c := range o.Query.Filter {
		checkFields("filter", []string{c.Field}, entity)
	}
	if res := query.ValidateFilter(o.Query.Filter.Filter()); !res.Valid {
		problems = append(problems, res.Problems...)
	}
	for _, s := range o.Query.Sort {
		checkFields("sort", []string{s.Field}, entity)
	}
	checkFields("fields.allow", o.Query.Fields.Allow, entity)
	checkFields("fields.exclude", o.Query.Fields.Exclude, entity)
	checkFields("persist", o.Query.Persist, entity)

	paths := make([]string, 0, len(o.Query.Join))
	for path := range o.Query.Join {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		target, err := walk(g, entity, path)
		if err != nil {
			problems = append(problems, "join: "+err.Error())
			continue
		}
		j := o.Query.Join[path]
		checkFields("join "+path+" allow", j.Allow, target)
		checkFields("join "+path+" exclude", j.Exclude, target)
	}

	if len(problems) > 0 {
		return fmt.Errorf("route policy: %s", strings.Join(problems, "; "))
	}
	return nil
}

// CheckAll runs Check over every route in the table.
func (t Table) CheckAll(g *schema.Graph) error {
	for _, name := range t.Names() {
		if err := Check(t[name], g); err != nil {
			return fmt.Errorf("route %s: %w", name, err)
		}
	}
	return nil
}

func walk(g *schema.Graph, root *schema.Entity, path string) (*schema.Entity, error) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		rel, ok := cur.Relation(seg)
		if !ok {
			return nil, fmt.Errorf("%s is not a valid join", seg)
		}
		cur = g.MustEntity(rel.Target)
	}
	return cur, nil
}

// SortOrDefault returns the caller sort when present, else the route sort.
func (o *Options) SortOrDefault(caller []query.Sort) []query.Sort {
	if len(caller) > 0 {
		return caller
	}
	return o.Query.Sort
}
