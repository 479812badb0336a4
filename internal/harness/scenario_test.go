package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content into a temp dir holding an empty schema dir
// and routes file, and returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schema"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.yaml"), []byte("routes: {}\n"), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "Minimal scenario"
schema: schema
routes: routes.yaml
flow:
  - route: users
    op: getMany
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
schema: schema
routes: routes.yaml
id_prefix: user
seed:
  - collection: users
    docs:
      - {_id: u1, name: Ada}
flow:
  - route: users
    op: createOne
    payload: {name: Bob}
    expect:
      result: {name: Bob}
assertions:
  - type: trace_contains
    op: createOne
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "schema"), scenario.Schema)
	assert.Equal(t, filepath.Join(dir, "routes.yaml"), scenario.Routes)
	assert.Equal(t, "user", scenario.IDPrefix)
	require.Len(t, scenario.Seed, 1)
	assert.Equal(t, "Ada", scenario.Seed[0].Docs[0]["name"])
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, OpCreateOne, scenario.Flow[0].Op)
	assert.Equal(t, "Bob", scenario.Flow[0].Payload["name"])
	require.NotNil(t, scenario.Flow[0].Expect)
	assert.Equal(t, "Bob", scenario.Flow[0].Expect.Result["name"])
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AbsolutePathsKept(t *testing.T) {
	schemaDir := t.TempDir()
	routesFile := filepath.Join(schemaDir, "routes.yaml")
	require.NoError(t, os.WriteFile(routesFile, []byte("routes: {}\n"), 0644))

	path := writeScenario(t, `
name: abs
description: "Absolute paths"
schema: `+schemaDir+`
routes: `+routesFile+`
flow:
  - route: users
    op: getMany
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, schemaDir, scenario.Schema)
	assert.Equal(t, routesFile, scenario.Routes)
}

func TestLoadScenario_MissingSchemaDir(t *testing.T) {
	path := writeScenario(t, `
name: bad
description: "Schema dir does not exist"
schema: nowhere
routes: routes.yaml
flow:
  - route: users
    op: getMany
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema directory not found")
}

func TestLoadScenario_MissingRoutesFile(t *testing.T) {
	path := writeScenario(t, `
name: bad
description: "Routes file does not exist"
schema: schema
routes: missing.yaml
flow:
  - route: users
    op: getMany
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routes file not found")
}

func TestParseScenario_Minimal(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "schema", scenario.Schema)
	assert.Nil(t, scenario.Flow[0].Expect)
	assert.Empty(t, scenario.Assertions)
}

func TestParseScenario_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
schema: s
routes: r
flow: [{route: users, op: getMany}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
schema: s
routes: r
flow: [{route: users, op: getMany}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing schema",
			content: `
name: n
description: d
routes: r
flow: [{route: users, op: getMany}]
`,
			wantErr: "schema is required",
		},
		{
			name: "missing routes",
			content: `
name: n
description: d
schema: s
flow: [{route: users, op: getMany}]
`,
			wantErr: "routes is required",
		},
		{
			name: "missing flow",
			content: `
name: n
description: d
schema: s
routes: r
`,
			wantErr: "flow list is required",
		},
		{
			name: "flow step without route",
			content: `
name: n
description: d
schema: s
routes: r
flow: [{op: getMany}]
`,
			wantErr: "flow[0]: route is required",
		},
		{
			name: "unknown op",
			content: `
name: n
description: d
schema: s
routes: r
flow: [{route: users, op: upsert}]
`,
			wantErr: `flow[0]: unknown op "upsert"`,
		},
		{
			name: "seed without collection",
			content: `
name: n
description: d
schema: s
routes: r
seed: [{docs: [{name: Ada}]}]
flow: [{route: users, op: getMany}]
`,
			wantErr: "seed[0]: collection is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_MalformedYAML(t *testing.T) {
	_, err := ParseScenario([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_UnknownFieldsRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "top-level typo",
			content: minimalScenario + "assertion: []\n",
		},
		{
			name: "flow step typo",
			content: `
name: n
description: d
schema: s
routes: r
flow:
  - route: users
    op: getMany
    descripter: {page: 1}
`,
		},
		{
			name: "descriptor typo",
			content: `
name: n
description: d
schema: s
routes: r
flow:
  - route: users
    op: getMany
    descriptor: {pages: 1}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "field")
		})
	}
}

func TestParseScenario_AssertionValidation(t *testing.T) {
	base := minimalScenario + "assertions:\n"
	tests := []struct {
		name      string
		assertion string
		wantErr   string
	}{
		{"missing type", "  - {op: getMany}\n", "type is required"},
		{"unknown type", "  - {type: trace_magic}\n", `unknown assertion type "trace_magic"`},
		{"contains without op", "  - {type: trace_contains}\n", "op is required for trace_contains"},
		{"order without ops", "  - {type: trace_order}\n", "ops list is required"},
		{"count without op", "  - {type: trace_count, count: 1}\n", "op is required for trace_count"},
		{"count negative", "  - {type: trace_count, op: getMany, count: -1}\n", "count must be non-negative"},
		{"final_state without collection", "  - {type: final_state, where: {_id: a}, expect: {x: 1}}\n", "collection is required"},
		{"final_state without where", "  - {type: final_state, collection: users, expect: {x: 1}}\n", "where is required"},
		{"final_state without expect", "  - {type: final_state, collection: users, where: {_id: a}}\n", "expect (or absent) is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(base + tt.assertion))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_ValidAssertions(t *testing.T) {
	content := minimalScenario + `assertions:
  - {type: trace_contains, route: users, op: getMany}
  - {type: trace_order, ops: [getMany, createOne]}
  - {type: trace_count, op: createOne, count: 0}
  - {type: final_state, collection: users, where: {_id: u1}, expect: {name: Ada}}
  - {type: final_state, collection: users, where: {_id: u2}, absent: true}
`
	scenario, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	require.Len(t, scenario.Assertions, 5)
	assert.Equal(t, 0, scenario.Assertions[2].Count)
	assert.True(t, scenario.Assertions[4].Absent)
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "trace_contains", AssertTraceContains)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "final_state", AssertFinalState)
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
