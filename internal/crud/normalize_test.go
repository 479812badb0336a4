package crud

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/crudq/internal/query"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		caller   []query.FilterCond
		static   []query.FilterCond
		params   []query.ParamFilter
		expected query.Filter
	}{
		{
			name:     "empty",
			expected: query.Filter{},
		},
		{
			name:     "params beat static",
			static:   []query.FilterCond{{Field: "a", Operator: query.OpEq, Value: 1}},
			params:   []query.ParamFilter{{Field: "a", Value: 2}},
			expected: query.Filter{"a": {query.OpEq: 2}},
		},
		{
			name:     "static beats caller",
			caller:   []query.FilterCond{{Field: "status", Operator: query.OpEq, Value: "draft"}},
			static:   []query.FilterCond{{Field: "status", Operator: query.OpEq, Value: "published"}},
			expected: query.Filter{"status": {query.OpEq: "published"}},
		},
		{
			name:   "later tier replaces whole condition",
			caller: []query.FilterCond{{Field: "views", Operator: query.OpGte, Value: 10}},
			params: []query.ParamFilter{{Field: "views", Value: 3}},
			expected: query.Filter{
				"views": {query.OpEq: 3},
			},
		},
		{
			name: "same tier combines operators",
			caller: []query.FilterCond{
				{Field: "views", Operator: query.OpGte, Value: 10},
				{Field: "views", Operator: query.OpLt, Value: 20},
			},
			expected: query.Filter{"views": {query.OpGte: 10, query.OpLt: 20}},
		},
		{
			name: "distinct fields all kept",
			caller: []query.FilterCond{
				{Field: "title", Operator: query.OpNe, Value: "x"},
			},
			static: []query.FilterCond{{Field: "status", Operator: query.OpEq, Value: "published"}},
			params: []query.ParamFilter{{Field: "authorId", Value: "u1"}},
			expected: query.Filter{
				"title":    {query.OpNe: "x"},
				"status":   {query.OpEq: "published"},
				"authorId": {query.OpEq: "u1"},
			},
		},
		{
			name:     "empty field skipped",
			caller:   []query.FilterCond{{Field: "", Operator: query.OpEq, Value: 1}},
			params:   []query.ParamFilter{{Field: "", Value: 2}},
			expected: query.Filter{},
		},
		{
			name:     "empty operator means eq",
			static:   []query.FilterCond{{Field: "a", Value: true}},
			expected: query.Filter{"a": {query.OpEq: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.caller, tt.static, tt.params)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	static := []query.FilterCond{{Field: "a", Operator: query.OpEq, Value: 1}}
	first := Normalize(nil, static, nil)
	first["a"][query.OpEq] = 99

	second := Normalize(nil, static, nil)
	assert.Equal(t, 1, second["a"][query.OpEq])
}
