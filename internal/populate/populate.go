// Package populate attaches related documents to query results following a
// population plan.
//
// Each plan node names a relation: the values of LocalField on the parent
// documents are looked up against ForeignField in the target collection with
// one $in query per node, and the matches are stored under the node's Path.
// A JustOne node stores the first match or nil; other nodes store a list,
// empty when nothing matched.
//
// Stores share this package so SQLite and MongoDB populate identically.
package populate

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/crudq/internal/query"
)

// Fetcher loads every document of a collection matching a filter.
type Fetcher interface {
	Fetch(ctx context.Context, collection string, f query.Filter) ([]query.Document, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, collection string, f query.Filter) ([]query.Document, error)

// Fetch calls fn.
func (fn FetcherFunc) Fetch(ctx context.Context, collection string, f query.Filter) ([]query.Document, error) {
	return fn(ctx, collection, f)
}

// Apply populates docs in place.
//
// Sibling nodes are fetched concurrently; results are attached once every
// fetch has finished, so docs is only written from the calling goroutine.
// Target documents are populated recursively, then projected as they are
// attached.
func Apply(ctx context.Context, fetcher Fetcher, docs []query.Document, nodes []*query.Populate) error {
	if len(docs) == 0 || len(nodes) == 0 {
		return nil
	}

	targets := make([][]query.Document, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range nodes {
		g.Go(func() error {
			found, err := fetchNode(gctx, fetcher, docs, n)
			if err != nil {
				return fmt.Errorf("populate %s: %w", n.Path, err)
			}
			targets[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, n := range nodes {
		attach(docs, n, targets[i])
	}
	return nil
}

func fetchNode(ctx context.Context, fetcher Fetcher, docs []query.Document, n *query.Populate) ([]query.Document, error) {
	values := localValues(docs, n.LocalField)
	if len(values) == 0 {
		return nil, nil
	}

	found, err := fetcher.Fetch(ctx, n.From, query.Filter{
		n.ForeignField: {query.OpIn: values},
	})
	if err != nil {
		return nil, err
	}
	if err := Apply(ctx, fetcher, found, n.Populate); err != nil {
		return nil, err
	}
	return found, nil
}

// localValues collects the distinct non-nil values of field across docs,
// flattening list values, in first-seen order.
func localValues(docs []query.Document, field string) []any {
	seen := map[string]bool{}
	var out []any
	for _, doc := range docs {
		for _, v := range flatten(doc[field]) {
			k := key(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// attach stores the projected matches of every doc under the node's path.
// Matches keep the order of the local value, then the order the store
// returned them in. Foreign keys are read before projection, so a projection
// may drop the foreign field.
func attach(docs []query.Document, n *query.Populate, targets []query.Document) {
	byKey := map[string][]query.Document{}
	for _, t := range targets {
		projected := Project(n.Projection, t, n.Populate)
		for _, v := range flatten(t[n.ForeignField]) {
			k := key(v)
			byKey[k] = append(byKey[k], projected)
		}
	}

	for _, doc := range docs {
		var matches []query.Document
		seen := map[string]bool{}
		for _, v := range flatten(doc[n.LocalField]) {
			k := key(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			matches = append(matches, byKey[k]...)
		}

		if n.JustOne {
			if len(matches) == 0 {
				doc[n.Path] = nil
			} else {
				doc[n.Path] = matches[0]
			}
			continue
		}
		if matches == nil {
			matches = []query.Document{}
		}
		doc[n.Path] = matches
	}
}

// FetchProjection widens p so a fetch keeps the local fields population
// reads. Use it when a store projects while fetching.
func FetchProjection(p query.Projection, nodes []*query.Populate) query.Projection {
	if len(nodes) == 0 || p.IsZero() {
		return p
	}
	locals := make([]string, 0, len(nodes))
	for _, n := range nodes {
		locals = append(locals, n.LocalField)
	}
	if len(p.Include) > 0 {
		include := slices.Clone(p.Include)
		for _, f := range locals {
			if !slices.Contains(include, f) {
				include = append(include, f)
			}
		}
		return query.Projection{Include: include}
	}
	exclude := slices.DeleteFunc(slices.Clone(p.Exclude), func(f string) bool {
		return slices.Contains(locals, f)
	})
	return query.Projection{Exclude: exclude}
}

// Project applies p to doc, keeping the paths of populated nodes.
func Project(p query.Projection, doc query.Document, nodes []*query.Populate) query.Document {
	if len(nodes) == 0 || p.IsZero() {
		return p.Apply(doc)
	}
	paths := make([]string, 0, len(nodes))
	for _, n := range nodes {
		paths = append(paths, n.Path)
	}
	if len(p.Include) > 0 {
		include := slices.Clone(p.Include)
		for _, path := range paths {
			if !slices.Contains(include, path) {
				include = append(include, path)
			}
		}
		return query.Projection{Include: include}.Apply(doc)
	}
	exclude := slices.DeleteFunc(slices.Clone(p.Exclude), func(f string) bool {
		return slices.Contains(paths, f)
	})
	return query.Projection{Exclude: exclude}.Apply(doc)
}

// flatten returns the elements of a list value, or v itself. Nil values and
// nil elements are dropped.
func flatten(v any) []any {
	if v == nil {
		return nil
	}
	if _, ok := v.(string); ok {
		return []any{v}
	}
	vals := query.Operands(v)
	if vals == nil {
		return []any{v}
	}
	return slices.DeleteFunc(slices.Clone(vals), func(e any) bool { return e == nil })
}

// key identifies a value across the types stores decode to: int64(1),
// float64(1) and json.Number("1") share a key.
func key(v any) string {
	if n, ok := v.(json.Number); ok {
		return string(n)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}
