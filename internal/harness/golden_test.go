package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_UserLifecycle(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "user_lifecycle.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_CanonicalJSON(t *testing.T) {
	result := NewResult()
	result.AddEvent(TraceEvent{
		Seq:   1,
		Route: "posts",
		Op:    OpGetMany,
		Args:  map[string]any{"descriptor": map[string]any{"page": float64(2)}},
		Result: map[string]any{
			"total": float64(3),
			"data":  []any{map[string]any{"views": float64(10), "_id": "p1"}},
		},
	})
	result.AddEvent(TraceEvent{Seq: 2, Route: "posts", Op: OpGetOne, Error: "NOT_FOUND"})

	data, err := Snapshot("snap", result)
	require.NoError(t, err)

	want := `{"scenario_name":"snap","trace":[` +
		`{"args":{"descriptor":{"page":2}},"op":"getMany","result":{"data":[{"_id":"p1","views":10}],"total":3},"route":"posts","seq":1},` +
		`{"error":"NOT_FOUND","op":"getOne","route":"posts","seq":2}]}`
	assert.Equal(t, want, string(data))
	assert.True(t, json.Valid(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	result := NewResult()
	result.AddEvent(TraceEvent{
		Seq:    1,
		Route:  "users",
		Op:     OpCreateOne,
		Result: map[string]any{"z": "1", "a": "2", "m": []any{"x", "y"}},
	})

	first, err := Snapshot("det", result)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Snapshot("det", result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "user_lifecycle.yaml"))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, scenario.Name, result))
}
