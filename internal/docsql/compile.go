// Package docsql compiles assembled document queries to parameterized SQLite
// SQL over a table of JSON documents.
//
// Documents live in one table keyed by (collection, id) with the document in
// a JSON text column. Field paths become json_extract expressions; the path
// itself is a bound parameter, as is every value.
//
// CRITICAL: values and paths are never interpolated into the SQL text.
// CRITICAL: every SELECT ends with "rowid ASC" so results are deterministic
// when sort keys tie or no sort is given.
package docsql

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/crudq/internal/query"
)

// DefaultTable is the documents table created by docstore.
const DefaultTable = "documents"

// Compiler compiles queries against one documents table.
type Compiler struct {
	// Table is the documents table name. It is trusted configuration, not
	// caller input.
	Table string
}

// NewCompiler creates a Compiler for DefaultTable.
func NewCompiler() *Compiler {
	return &Compiler{Table: DefaultTable}
}

// Select compiles q to a query returning (rowid, id, body) rows.
//
// Sort keys come first in ORDER BY, followed by the rowid tiebreaker. Skip
// and limit become LIMIT/OFFSET; a skip without a limit uses LIMIT -1.
func (c *Compiler) Select(q *query.Assembled) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if res := query.Validate(q); !res.Valid {
		return "", nil, res.Err()
	}

	where, params, err := c.where(q.Collection, q.Filter)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT rowid, id, body FROM %s WHERE %s ORDER BY ", c.Table, where)
	for _, s := range q.Sort {
		b.WriteString("json_extract(body, ?) ")
		if s.Order.Normalize() == query.Desc {
			b.WriteString("DESC, ")
		} else {
			b.WriteString("ASC, ")
		}
		params = append(params, JSONPath(s.Field))
	}
	b.WriteString("rowid ASC")

	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, q.Limit, q.Skip)
	case q.Skip > 0:
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, q.Skip)
	}
	return b.String(), params, nil
}

// Count compiles a count of the documents in collection matching f.
func (c *Compiler) Count(collection string, f query.Filter) (string, []any, error) {
	if collection == "" {
		return "", nil, fmt.Errorf("missing collection")
	}
	if res := query.ValidateFilter(f); !res.Valid {
		return "", nil, res.Err()
	}
	where, params, err := c.where(collection, f)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.Table, where), params, nil
}

func (c *Compiler) where(collection string, f query.Filter) (string, []any, error) {
	parts := []string{"collection = ?"}
	params := []any{collection}

	for _, field := range f.Fields() {
		cond := f[field]
		ops := make([]query.Operator, 0, len(cond))
		for op := range cond {
			ops = append(ops, op)
		}
		slices.Sort(ops)

		for _, op := range ops {
			sql, p, err := compileCondition(field, op, cond[op])
			if err != nil {
				return "", nil, fmt.Errorf("filter %s %s: %w", field, op, err)
			}
			parts = append(parts, sql)
			params = append(params, p...)
		}
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileCondition compiles one field/operator pair.
// CRITICAL: operands are always bound parameters.
func compileCondition(field string, op query.Operator, operand any) (string, []any, error) {
	path := JSONPath(field)
	const expr = "json_extract(body, ?)"

	switch op {
	case query.OpEq:
		if operand == nil {
			return expr + " IS NULL", []any{path}, nil
		}
		v, err := Param(operand)
		if err != nil {
			return "", nil, err
		}
		return expr + " = ?", []any{path, v}, nil

	case query.OpNe:
		if operand == nil {
			return expr + " IS NOT NULL", []any{path}, nil
		}
		v, err := Param(operand)
		if err != nil {
			return "", nil, err
		}
		return "(" + expr + " IS NULL OR " + expr + " <> ?)", []any{path, path, v}, nil

	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		v, err := Param(operand)
		if err != nil {
			return "", nil, err
		}
		return expr + " " + comparators[op] + " ?", []any{path, v}, nil

	case query.OpIn, query.OpNin:
		return compileMembership(expr, path, op, query.Operands(operand))

	case query.OpExists:
		want, _ := operand.(bool)
		if want {
			return "json_type(body, ?) IS NOT NULL", []any{path}, nil
		}
		return "json_type(body, ?) IS NULL", []any{path}, nil
	}
	return "", nil, fmt.Errorf("unsupported operator %q", op)
}

var comparators = map[query.Operator]string{
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// compileMembership compiles $in and $nin. A nil element matches missing
// and null fields, as it does in MongoDB.
func compileMembership(expr, path string, op query.Operator, operands []any) (string, []any, error) {
	var values []any
	hasNull := false
	for _, o := range operands {
		if o == nil {
			hasNull = true
			continue
		}
		v, err := Param(o)
		if err != nil {
			return "", nil, err
		}
		values = append(values, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	params := []any{path}

	if op == query.OpIn {
		switch {
		case len(values) == 0 && !hasNull:
			return "0 = 1", nil, nil
		case len(values) == 0:
			return expr + " IS NULL", params, nil
		case hasNull:
			return "(" + expr + " IN (" + placeholders + ") OR " + expr + " IS NULL)",
				append(append(params, values...), path), nil
		default:
			return expr + " IN (" + placeholders + ")", append(params, values...), nil
		}
	}

	switch {
	case len(values) == 0 && !hasNull:
		return "1 = 1", nil, nil
	case len(values) == 0:
		return expr + " IS NOT NULL", params, nil
	case hasNull:
		return "(" + expr + " IS NOT NULL AND " + expr + " NOT IN (" + placeholders + "))",
			append(append(params, path), values...), nil
	default:
		return "(" + expr + " IS NULL OR " + expr + " NOT IN (" + placeholders + "))",
			append(append(params, path), values...), nil
	}
}

// JSONPath converts a dotted field path to a SQLite JSON path with quoted
// segments, e.g. "author.name" → `$."author"."name"`. Paths must have passed
// query.CheckPath, which rules out quotes and backslashes.
func JSONPath(field string) string {
	segs := strings.Split(field, ".")
	var b strings.Builder
	b.WriteString("$")
	for _, s := range segs {
		b.WriteString(`."`)
		b.WriteString(s)
		b.WriteString(`"`)
	}
	return b.String()
}

// Param converts a filter operand to a value SQLite compares the way
// json_extract results compare: booleans become 1/0, integers int64 and
// other numbers float64. Lists and objects are not comparable.
func Param(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val), nil
		}
		return val, nil
	case float32:
		return Param(float64(val))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.String:
		return rv.String(), nil
	}
	return nil, fmt.Errorf("unsupported operand type %T", v)
}
