package crud

import (
	"fmt"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/crudq/internal/query"
	"github.com/roach88/crudq/internal/route"
	"github.com/roach88/crudq/internal/schema"
)

// DefaultRelationCacheSize bounds the number of walked join paths kept per
// service.
const DefaultRelationCacheSize = 256

// relationResolver walks dotted join paths from one root entity.
//
// Walked chains are cached; the schema graph never changes after startup so
// entries never go stale. The cache is safe for concurrent use.
type relationResolver struct {
	graph  *schema.Graph
	root   *schema.Entity
	chains *lru.Cache[string, []schema.Relation]
}

func newRelationResolver(graph *schema.Graph, root *schema.Entity, size int) (*relationResolver, error) {
	if size <= 0 {
		size = DefaultRelationCacheSize
	}
	chains, err := lru.New[string, []schema.Relation](size)
	if err != nil {
		return nil, fmt.Errorf("relation cache: %w", err)
	}
	return &relationResolver{graph: graph, root: root, chains: chains}, nil
}

// walk returns the relation for every segment of path. A segment that is not
// a declared relation on the entity reached so far is an InvalidInput error
// naming that segment.
func (r *relationResolver) walk(path string) ([]schema.Relation, error) {
	if chain, ok := r.chains.Get(path); ok {
		return chain, nil
	}
	segs := strings.Split(path, ".")
	chain := make([]schema.Relation, 0, len(segs))
	cur := r.root
	for _, seg := range segs {
		rel, ok := cur.Relation(seg)
		if !ok {
			return nil, invalidInput(r.root.Name, seg, "%s is not a valid join", seg)
		}
		chain = append(chain, rel)
		cur = r.graph.MustEntity(rel.Target)
	}
	r.chains.Add(path, chain)
	return chain, nil
}

// ResolvePath builds the population node for one join path. The innermost
// segment carries proj; each enclosing segment wraps the next, and the
// outermost node is returned. Enclosing nodes carry no projection.
func (r *relationResolver) ResolvePath(path string, proj query.Projection) (*query.Populate, error) {
	chain, err := r.walk(path)
	if err != nil {
		return nil, err
	}
	var node *query.Populate
	for i := len(chain) - 1; i >= 0; i-- {
		rel := chain[i]
		n := &query.Populate{
			Path:         rel.Name,
			From:         r.graph.MustEntity(rel.Target).Collection,
			LocalField:   rel.LocalField,
			ForeignField: rel.ForeignField,
			JustOne:      rel.JustOne,
		}
		if node == nil {
			n.Projection = proj
		} else {
			n.Populate = []*query.Populate{node}
		}
		node = n
	}
	return node, nil
}

// Plan merges eager and requested joins into one population plan.
//
// Nothing is joined when the route declares no join policy, though caller
// joins must still name valid relation paths. Eager relations
// are resolved first, using the caller's matching join when there is one so
// its sub-select is honored; each caller join not consumed by an eager
// relation is resolved afterwards. Joins without a policy entry resolve with
// no field restrictions. The plan never holds two nodes for the same path.
func (r *relationResolver) Plan(requested []query.Join, policy map[string]route.JoinOptions) ([]*query.Populate, error) {
	if len(policy) == 0 {
		for _, j := range requested {
			if j.Field == "" {
				continue
			}
			if _, err := r.walk(j.Field); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	paths := make([]string, 0, len(policy))
	for path := range policy {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var joins []query.Join
	consumed := map[string]bool{}
	for _, path := range paths {
		if !policy[path].Eager {
			continue
		}
		j := query.Join{Field: path}
		if idx := slices.IndexFunc(requested, func(c query.Join) bool { return c.Field == path }); idx >= 0 {
			j = requested[idx]
		}
		joins = append(joins, j)
		consumed[path] = true
	}
	for _, j := range requested {
		if j.Field == "" || consumed[j.Field] {
			continue
		}
		joins = append(joins, j)
		consumed[j.Field] = true
	}

	var plan []*query.Populate
	for _, j := range joins {
		chain, err := r.walk(j.Field)
		if err != nil {
			return nil, err
		}
		target := r.graph.MustEntity(chain[len(chain)-1].Target)
		proj := query.Projection{Include: ResolveProjection(
			target.FieldNames(), policy[j.Field].Policy(), j.Select, nil, target.PrimaryKeys,
		)}
		node, err := r.ResolvePath(j.Field, proj)
		if err != nil {
			return nil, err
		}
		plan = mergePopulate(plan, node)
	}

	r.fillImplied(plan, "", r.root, policy)
	return plan, nil
}

// mergePopulate adds n to nodes, merging it into an existing node with the
// same path. An existing node without a projection takes n's.
func mergePopulate(nodes []*query.Populate, n *query.Populate) []*query.Populate {
	for _, existing := range nodes {
		if existing.Path != n.Path {
			continue
		}
		if existing.Projection.IsZero() {
			existing.Projection = n.Projection
		}
		for _, child := range n.Populate {
			existing.Populate = mergePopulate(existing.Populate, child)
		}
		return nodes
	}
	return append(nodes, n)
}

// fillImplied gives enclosing nodes that were never joined on their own the
// projection their path's policy allows.
func (r *relationResolver) fillImplied(nodes []*query.Populate, prefix string, parent *schema.Entity, policy map[string]route.JoinOptions) {
	for _, n := range nodes {
		path := n.Path
		if prefix != "" {
			path = prefix + "." + n.Path
		}
		rel, _ := parent.Relation(n.Path)
		target := r.graph.MustEntity(rel.Target)
		if n.Projection.IsZero() {
			n.Projection = query.Projection{Include: ResolveProjection(
				target.FieldNames(), policy[path].Policy(), nil, nil, target.PrimaryKeys,
			)}
		}
		r.fillImplied(n.Populate, path, target, policy)
	}
}
