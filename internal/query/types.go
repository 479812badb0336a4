package query

import (
	"slices"
	"strings"
)

// Document is a single stored or returned document.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Operator is a comparison operator using MongoDB naming.
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpExists Operator = "$exists"
)

// AllowedOperators is the closed set of operators accepted from callers and
// route configuration. Anything else (e.g. "$where") is rejected.
var AllowedOperators = map[Operator]bool{
	OpEq:     true,
	OpNe:     true,
	OpGt:     true,
	OpGte:    true,
	OpLt:     true,
	OpLte:    true,
	OpIn:     true,
	OpNin:    true,
	OpExists: true,
}

// FilterCond is a single {field, operator, value} filter entry.
type FilterCond struct {
	Field    string   `json:"field" yaml:"field" validate:"required"`
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty" validate:"omitempty,oneof=$eq $ne $gt $gte $lt $lte $in $nin $exists"`
	Value    any      `json:"value" yaml:"value"`
}

// ParamFilter is a route-derived identity constraint, e.g. a parent id taken
// from a nested path.
type ParamFilter struct {
	Field string `json:"field" yaml:"field"`
	Value any    `json:"value" yaml:"value"`
}

// Join is a caller-requested relation, optionally restricted to a sub-select.
type Join struct {
	Field  string   `json:"field" yaml:"field"`
	Select []string `json:"select,omitempty" yaml:"select,omitempty"`
}

// SortOrder is ASC or DESC.
type SortOrder string

const (
	Asc  SortOrder = "ASC"
	Desc SortOrder = "DESC"
)

// Normalize returns the upper-cased order; anything that is not DESC sorts
// ascending.
func (o SortOrder) Normalize() SortOrder {
	if strings.EqualFold(string(o), string(Desc)) {
		return Desc
	}
	return Asc
}

// Direction returns 1 for ascending and -1 for descending.
func (o SortOrder) Direction() int {
	if o.Normalize() == Desc {
		return -1
	}
	return 1
}

// Sort is one sort key.
type Sort struct {
	Field string    `json:"field" yaml:"field" validate:"required"`
	Order SortOrder `json:"order" yaml:"order" validate:"omitempty,oneof=ASC DESC asc desc"`
}

// Descriptor is the canonical parsed request.
type Descriptor struct {
	Filter       []FilterCond  `json:"filter,omitempty" yaml:"filter,omitempty"`
	ParamsFilter []ParamFilter `json:"paramsFilter,omitempty" yaml:"paramsFilter,omitempty"`
	AuthPersist  Document      `json:"authPersist,omitempty" yaml:"authPersist,omitempty"`
	Join         []Join        `json:"join,omitempty" yaml:"join,omitempty"`
	Sort         []Sort        `json:"sort,omitempty" yaml:"sort,omitempty"`
	Fields       []string      `json:"fields,omitempty" yaml:"fields,omitempty"`
	Page         *int          `json:"page,omitempty" yaml:"page,omitempty"`
	Offset       *int          `json:"offset,omitempty" yaml:"offset,omitempty"`
	Limit        *int          `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Params returns the params filter as a plain field → value document.
func (d *Descriptor) Params() Document {
	out := Document{}
	for _, p := range d.ParamsFilter {
		if p.Field == "" {
			continue
		}
		out[p.Field] = p.Value
	}
	return out
}

// Condition maps an operator to its operand.
type Condition map[Operator]any

// Filter maps a field path to its condition. All entries are ANDed.
type Filter map[string]Condition

// Fields returns the filtered field paths in sorted order.
func (f Filter) Fields() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a copy whose conditions can be modified independently.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for field, cond := range f {
		c := make(Condition, len(cond))
		for op, v := range cond {
			c[op] = v
		}
		out[field] = c
	}
	return out
}

// Eq builds a single equality filter.
func Eq(field string, value any) Filter {
	return Filter{field: Condition{OpEq: value}}
}

// Projection selects document fields. A non-empty Include wins over Exclude.
// The zero value returns every field.
type Projection struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// IsZero reports whether the projection keeps every field.
func (p Projection) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// Apply returns a copy of doc restricted to the projection.
func (p Projection) Apply(doc Document) Document {
	if doc == nil {
		return nil
	}
	if len(p.Include) > 0 {
		out := make(Document, len(p.Include))
		for _, f := range p.Include {
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
		return out
	}
	out := doc.Clone()
	for _, f := range p.Exclude {
		delete(out, f)
	}
	return out
}

// Populate is one node of a population plan.
type Populate struct {
	Path         string      `json:"path"`
	From         string      `json:"from"`
	LocalField   string      `json:"localField"`
	ForeignField string      `json:"foreignField"`
	JustOne      bool        `json:"justOne"`
	Projection   Projection  `json:"projection"`
	Populate     []*Populate `json:"populate,omitempty"`
}

// Clone deep-copies the node and its children.
func (p *Populate) Clone() *Populate {
	if p == nil {
		return nil
	}
	out := *p
	out.Projection = Projection{
		Include: slices.Clone(p.Projection.Include),
		Exclude: slices.Clone(p.Projection.Exclude),
	}
	out.Populate = nil
	for _, child := range p.Populate {
		out.Populate = append(out.Populate, child.Clone())
	}
	return &out
}

// Assembled is a ready-to-execute query against one collection.
//
// Limit 0 means unbounded. Sort, Skip and Limit are only set when Many is
// true.
type Assembled struct {
	Collection string      `json:"collection"`
	Filter     Filter      `json:"filter"`
	Projection Projection  `json:"projection"`
	Populate   []*Populate `json:"populate,omitempty"`
	Sort       []Sort      `json:"sort,omitempty"`
	Skip       int         `json:"skip"`
	Limit      int         `json:"limit"`
	Many       bool        `json:"many"`
}

// PageEnvelope is the paginated response shape.
type PageEnvelope struct {
	Data      []Document `json:"data"`
	Count     int        `json:"count"`
	Total     int64      `json:"total"`
	Page      int        `json:"page"`
	PageCount int        `json:"pageCount"`
}
