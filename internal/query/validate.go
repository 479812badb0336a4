package query

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems are human-readable descriptions, in traversal order.
	Problems []string
}

// Err returns nil for a valid result, otherwise an error joining the problems.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks that an assembled query only uses safe field paths and
// allowed operators with well-formed operands. Stores call it before
// translating a query so nothing outside the allowed fragment reaches a
// backend.
//
// Validate is a pure function with no side effects.
func Validate(q *Assembled) ValidationResult {
	v := &validator{problems: []string{}}
	if q == nil {
		v.addProblem("nil query")
	} else {
		if q.Collection == "" {
			v.addProblem("missing collection")
		}
		v.validateFilter(q.Filter)
		for _, s := range q.Sort {
			v.validatePath("sort", s.Field)
		}
		if q.Skip < 0 {
			v.addProblem("negative skip %d", q.Skip)
		}
		if q.Limit < 0 {
			v.addProblem("negative limit %d", q.Limit)
		}
		for _, p := range q.Populate {
			v.validatePopulate(p)
		}
	}
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

// ValidateFilter is Validate restricted to a filter.
func ValidateFilter(f Filter) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateFilter(f)
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

// CheckPath reports whether a field path is safe to hand to a store: non-empty
// dot-separated segments, none starting with "$", no quotes or NULs.
func CheckPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty field path")
	}
	for _, seg := range strings.Split(path, ".") {
		switch {
		case seg == "":
			return fmt.Errorf("field path %q has an empty segment", path)
		case strings.HasPrefix(seg, "$"):
			return fmt.Errorf("field path %q uses an operator segment", path)
		case strings.ContainsAny(seg, "\"\\\x00"):
			return fmt.Errorf("field path %q contains a forbidden character", path)
		}
	}
	return nil
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePath(context, path string) {
	if err := CheckPath(path); err != nil {
		v.addProblem("%s: %v", context, err)
	}
}

func (v *validator) validateFilter(f Filter) {
	for _, field := range f.Fields() {
		v.validatePath("filter", field)
		for op, operand := range f[field] {
			v.validateOperand(field, op, operand)
		}
	}
}

func (v *validator) validateOperand(field string, op Operator, operand any) {
	if !AllowedOperators[op] {
		v.addProblem("filter: operator %q on %q is not allowed", op, field)
		return
	}
	switch op {
	case OpIn, OpNin:
		if operand == nil || reflect.TypeOf(operand).Kind() != reflect.Slice {
			v.addProblem("filter: %s on %q needs a list, got %T", op, field, operand)
		}
	case OpExists:
		if _, ok := operand.(bool); !ok {
			v.addProblem("filter: %s on %q needs a boolean, got %T", op, field, operand)
		}
	default:
		if operand == nil {
			return
		}
		switch reflect.TypeOf(operand).Kind() {
		case reflect.Map, reflect.Slice:
			v.addProblem("filter: %s on %q needs a scalar, got %T", op, field, operand)
		}
	}
}

func (v *validator) validatePopulate(p *Populate) {
	if p == nil {
		v.addProblem("populate: nil node")
		return
	}
	v.validatePath("populate", p.Path)
	v.validatePath("populate "+p.Path+" localField", p.LocalField)
	v.validatePath("populate "+p.Path+" foreignField", p.ForeignField)
	if p.From == "" {
		v.addProblem("populate %s: missing target collection", p.Path)
	}
	for _, child := range p.Populate {
		v.validatePopulate(child)
	}
}

// Operands returns the elements of an $in / $nin operand as a []any.
func Operands(operand any) []any {
	if vals, ok := operand.([]any); ok {
		return vals
	}
	rv := reflect.ValueOf(operand)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
