package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError is a schema error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadDir loads every .cue file in dir as one CUE instance and compiles the
// `entity` struct into a Graph.
//
//	entity: Post: {
//	  fields: ["title", "authorId"]
//	  relations: author: {target: "User", localField: "authorId", justOne: true}
//	}
func LoadDir(dir string) (*Graph, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scanning schema directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	// Listed files form a single instance; no cue.mod is required.
	ctx := cuecontext.New()
	instances := load.Instances(files, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(value)
}

// LoadString compiles CUE source text. Used by tests and embedded schemas.
func LoadString(src string) (*Graph, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(value)
}

// Compile builds a Graph from a CUE value holding an `entity` struct.
func Compile(v cue.Value) (*Graph, error) {
	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entities declared", Pos: v.Pos()}
	}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []Entity
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	g, err := NewGraph(entities...)
	if err != nil {
		return nil, &CompileError{Field: "entity", Message: err.Error(), Pos: entitiesVal.Pos()}
	}
	return g, nil
}

func compileEntity(name string, v cue.Value) (Entity, error) {
	e := Entity{Name: name}

	if c := v.LookupPath(cue.ParsePath("collection")); c.Exists() {
		s, err := c.String()
		if err != nil {
			return e, formatCUEError(err)
		}
		e.Collection = s
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return e, &CompileError{Field: "fields", Message: fmt.Sprintf("entity %s: fields are required", name), Pos: v.Pos()}
	}
	fields, err := stringList(fieldsVal)
	if err != nil {
		return e, err
	}
	e.Fields = fields

	if p := v.LookupPath(cue.ParsePath("primary")); p.Exists() {
		pks, err := stringList(p)
		if err != nil {
			return e, err
		}
		e.PrimaryKeys = pks
	}

	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if relsVal.Exists() {
		e.Relations = map[string]Relation{}
		relIter, err := relsVal.Fields()
		if err != nil {
			return e, formatCUEError(err)
		}
		for relIter.Next() {
			rel, err := compileRelation(relIter.Value())
			if err != nil {
				return e, err
			}
			e.Relations[relIter.Label()] = rel
		}
	}
	return e, nil
}

func compileRelation(v cue.Value) (Relation, error) {
	var rel Relation

	target := v.LookupPath(cue.ParsePath("target"))
	if !target.Exists() {
		return rel, &CompileError{Field: "relations.target", Message: "target is required", Pos: v.Pos()}
	}
	s, err := target.String()
	if err != nil {
		return rel, formatCUEError(err)
	}
	rel.Target = s

	for _, f := range []struct {
		path string
		dst  *string
	}{
		{"localField", &rel.LocalField},
		{"foreignField", &rel.ForeignField},
	} {
		fv := v.LookupPath(cue.ParsePath(f.path))
		if !fv.Exists() {
			continue
		}
		s, err := fv.String()
		if err != nil {
			return rel, formatCUEError(err)
		}
		*f.dst = s
	}

	if j := v.LookupPath(cue.ParsePath("justOne")); j.Exists() {
		b, err := j.Bool()
		if err != nil {
			return rel, formatCUEError(err)
		}
		rel.JustOne = b
	}
	return rel, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError keeps the position of the first CUE error.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
