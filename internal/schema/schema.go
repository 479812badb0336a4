// Package schema describes the document entities the crud engine serves:
// their fields, primary keys, collections and declared relations.
//
// A Graph is built once at startup (from CUE files via LoadDir, or directly
// with NewGraph) and is read-only afterwards, so it is safe to share between
// goroutines.
package schema

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gobuffalo/flect"
)

// DefaultPrimaryKey is the primary key used when an entity declares none.
const DefaultPrimaryKey = "_id"

// Relation is a reference from one entity to another, resolved by lookup.
type Relation struct {
	// Name is the path the populated documents are attached under.
	Name string

	// Target is the referenced entity name.
	Target string

	// LocalField holds the referencing value on the source document.
	LocalField string

	// ForeignField is matched against LocalField on the target documents.
	// Defaults to the target's first primary key.
	ForeignField string

	// JustOne attaches a single document (or nil) instead of a list.
	JustOne bool
}

// Entity is one document type.
type Entity struct {
	Name string

	// Collection defaults to the pluralized, underscored entity name.
	Collection string

	// Fields is the ordered column set. Primary keys are always included.
	Fields []string

	// PrimaryKeys defaults to ["_id"].
	PrimaryKeys []string

	Relations map[string]Relation
}

// FieldNames returns the entity's columns in declaration order.
func (e *Entity) FieldNames() []string {
	return slices.Clone(e.Fields)
}

// HasField reports whether name is a declared column.
func (e *Entity) HasField(name string) bool {
	return slices.Contains(e.Fields, name)
}

// Relation returns the declared relation called name.
func (e *Entity) Relation(name string) (Relation, bool) {
	r, ok := e.Relations[name]
	return r, ok
}

// RelationNames returns the declared relation names, sorted.
func (e *Entity) RelationNames() []string {
	names := make([]string, 0, len(e.Relations))
	for name := range e.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrimaryKey returns the first primary key field.
func (e *Entity) PrimaryKey() string {
	return e.PrimaryKeys[0]
}

// Graph is the set of entities and the relations between them.
type Graph struct {
	entities map[string]*Entity
}

// NewGraph fills in defaults and checks that every relation points at a
// declared entity.
func NewGraph(entities ...Entity) (*Graph, error) {
	g := &Graph{entities: make(map[string]*Entity, len(entities))}
	for i := range entities {
		e := entities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("entity %d: missing name", i)
		}
		if _, dup := g.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity %s: declared twice", e.Name)
		}
		normalizeEntity(&e)
		g.entities[e.Name] = &e
	}

	for _, name := range g.Names() {
		e := g.entities[name]
		for _, relName := range e.RelationNames() {
			rel := e.Relations[relName]
			target, ok := g.entities[rel.Target]
			if !ok {
				return nil, fmt.Errorf("entity %s: relation %s: unknown target entity %q", name, relName, rel.Target)
			}
			if rel.LocalField == "" {
				return nil, fmt.Errorf("entity %s: relation %s: missing localField", name, relName)
			}
			if rel.ForeignField == "" {
				rel.ForeignField = target.PrimaryKey()
			}
			if e.HasField(relName) && relName != rel.LocalField {
				return nil, fmt.Errorf("entity %s: relation %s shadows a field", name, relName)
			}
			rel.Name = relName
			e.Relations[relName] = rel
		}
	}
	return g, nil
}

func normalizeEntity(e *Entity) {
	if e.Collection == "" {
		e.Collection = flect.Pluralize(flect.Underscore(e.Name))
	}
	if len(e.PrimaryKeys) == 0 {
		e.PrimaryKeys = []string{DefaultPrimaryKey}
	}
	fields := make([]string, 0, len(e.PrimaryKeys)+len(e.Fields))
	for _, pk := range e.PrimaryKeys {
		if !slices.Contains(e.Fields, pk) {
			fields = append(fields, pk)
		}
	}
	for _, f := range e.Fields {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	e.Fields = fields

	rels := make(map[string]Relation, len(e.Relations))
	for name, r := range e.Relations {
		rels[name] = r
	}
	e.Relations = rels
}

// Entity looks up an entity by name.
func (g *Graph) Entity(name string) (*Entity, bool) {
	e, ok := g.entities[name]
	return e, ok
}

// MustEntity is Entity for names known to exist, e.g. relation targets.
func (g *Graph) MustEntity(name string) *Entity {
	e, ok := g.entities[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown entity %q", name))
	}
	return e
}

// Names returns all entity names, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.entities))
	for name := range g.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
