package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidQuery(t *testing.T) {
	q := &Assembled{
		Collection: "posts",
		Filter: Filter{
			"status":    {OpEq: "published"},
			"views":     {OpGte: 10, OpLt: 100},
			"tags":      {OpIn: []any{"go", "db"}},
			"deletedAt": {OpExists: false},
		},
		Sort:  []Sort{{Field: "author.name", Order: Desc}},
		Limit: 10,
		Many:  true,
		Populate: []*Populate{{
			Path: "author", From: "users", LocalField: "authorId", ForeignField: "_id",
			Populate: []*Populate{{Path: "company", From: "companies", LocalField: "companyId", ForeignField: "_id"}},
		}},
	}

	result := Validate(q)
	assert.True(t, result.Valid, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name string
		q    *Assembled
		want string
	}{
		{"nil query", nil, "nil query"},
		{"missing collection", &Assembled{}, "missing collection"},
		{"operator segment", &Assembled{Collection: "c", Filter: Filter{"$where": {OpEq: 1}}}, "operator segment"},
		{"empty segment", &Assembled{Collection: "c", Filter: Filter{"a..b": {OpEq: 1}}}, "empty segment"},
		{"quote in path", &Assembled{Collection: "c", Filter: Filter{`a"b`: {OpEq: 1}}}, "forbidden character"},
		{"operator not allowed", &Assembled{Collection: "c", Filter: Filter{"a": {"$regex": ".*"}}}, `operator "$regex" on "a" is not allowed`},
		{"$in needs a list", &Assembled{Collection: "c", Filter: Filter{"a": {OpIn: "x"}}}, "$in on \"a\" needs a list"},
		{"$exists needs a bool", &Assembled{Collection: "c", Filter: Filter{"a": {OpExists: 1}}}, "needs a boolean"},
		{"bad sort path", &Assembled{Collection: "c", Sort: []Sort{{Field: "$natural"}}}, "sort:"},
		{"negative skip", &Assembled{Collection: "c", Skip: -1}, "negative skip -1"},
		{"negative limit", &Assembled{Collection: "c", Limit: -5}, "negative limit -5"},
		{"populate without target", &Assembled{Collection: "c", Populate: []*Populate{{Path: "a", LocalField: "aId", ForeignField: "_id"}}}, "populate a: missing target collection"},
		{"nested populate", &Assembled{Collection: "c", Populate: []*Populate{{
			Path: "a", From: "as", LocalField: "aId", ForeignField: "_id",
			Populate: []*Populate{nil},
		}}}, "populate: nil node"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.q)
			assert.False(t, result.Valid)
			require.Error(t, result.Err())
			assert.Contains(t, result.Err().Error(), tt.want)
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.True(t, ValidateFilter(Filter{"a.b": {OpNe: nil}}).Valid)
	assert.False(t, ValidateFilter(Filter{"a": {OpNin: 3}}).Valid)
	assert.True(t, ValidateFilter(nil).Valid)

	res := ValidateFilter(Filter{"views": {OpEq: map[string]any{"$gte": 10}}})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Problems[0], `$eq on "views" needs a scalar`)
	assert.False(t, ValidateFilter(Filter{"tags": {OpGt: []any{1}}}).Valid)
}

func TestOperands(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, Operands([]any{"a", "b"}))
	assert.Equal(t, []any{1, 2}, Operands([]int{1, 2}))
	assert.Nil(t, Operands("x"))
	assert.Nil(t, Operands(nil))
}

func TestSortOrder(t *testing.T) {
	assert.Equal(t, Desc, SortOrder("desc").Normalize())
	assert.Equal(t, Asc, SortOrder("").Normalize())
	assert.Equal(t, Asc, SortOrder("sideways").Normalize())
	assert.Equal(t, -1, Desc.Direction())
	assert.Equal(t, 1, Asc.Direction())
}

func TestProjection_Apply(t *testing.T) {
	doc := Document{"_id": "p1", "title": "T", "body": "B"}

	assert.Equal(t, doc, Projection{}.Apply(doc))
	assert.Equal(t, Document{"_id": "p1", "title": "T"}, Projection{Include: []string{"_id", "title", "missing"}}.Apply(doc))
	assert.Equal(t, Document{"_id": "p1", "title": "T"}, Projection{Exclude: []string{"body"}}.Apply(doc))
	assert.Equal(t, Document{"title": "T"}, Projection{Include: []string{"title"}, Exclude: []string{"title"}}.Apply(doc), "include wins")
	assert.Nil(t, Projection{}.Apply(nil))
	assert.True(t, Projection{}.IsZero())

	// Apply never mutates its input.
	assert.Len(t, doc, 3)
}

func TestDescriptor_Params(t *testing.T) {
	d := &Descriptor{ParamsFilter: []ParamFilter{
		{Field: "_id", Value: "p1"},
		{Field: "", Value: "skipped"},
		{Field: "authorId", Value: "u1"},
	}}
	assert.Equal(t, Document{"_id": "p1", "authorId": "u1"}, d.Params())
}

func TestFilter_CloneAndFields(t *testing.T) {
	f := Filter{"b": {OpEq: 1}, "a": {OpGt: 2}}
	assert.Equal(t, []string{"a", "b"}, f.Fields())

	c := f.Clone()
	c["a"][OpLt] = 5
	assert.NotContains(t, f["a"], OpLt)
	assert.Equal(t, Filter{"x": {OpEq: "y"}}, Eq("x", "y"))
}

func TestPopulate_Clone(t *testing.T) {
	p := &Populate{
		Path:       "author",
		Projection: Projection{Include: []string{"name"}},
		Populate:   []*Populate{{Path: "company"}},
	}
	c := p.Clone()
	c.Projection.Include[0] = "email"
	c.Populate[0].Path = "team"

	assert.Equal(t, "name", p.Projection.Include[0])
	assert.Equal(t, "company", p.Populate[0].Path)
	assert.Nil(t, (*Populate)(nil).Clone())
}

func TestDocument_Clone(t *testing.T) {
	d := Document{"a": 1}
	c := d.Clone()
	c["b"] = 2
	assert.NotContains(t, d, "b")
	assert.Nil(t, Document(nil).Clone())
}
