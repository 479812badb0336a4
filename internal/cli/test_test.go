package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: users_read
description: "Reads a seeded user"
schema: %s
routes: %s
seed:
  - collection: users
    docs:
      - {_id: u1, name: Ada, password: pw}
flow:
  - route: users
    op: getOne
    descriptor:
      paramsFilter:
        - {field: _id, value: u1}
    expect:
      result: {name: Ada}
assertions:
  - type: trace_count
    op: getOne
    count: 1
`

const failingScenario = `name: users_missing
description: "Expects a user that is not there"
schema: %s
routes: %s
flow:
  - route: users
    op: getOne
    descriptor:
      paramsFilter:
        - {field: _id, value: u1}
`

// writeScenarios writes scenario files bound to the test schema and routes
// and returns their directory.
func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	schemaDir, err := filepath.Abs(filepath.Join("testdata", "schema"))
	require.NoError(t, err)
	routes, err := filepath.Abs(filepath.Join("testdata", "routes.yaml"))
	require.NoError(t, err)

	dir := t.TempDir()
	for name, content := range files {
		body := fmt.Sprintf(content, schemaDir, routes)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestTestCommand_Pass(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"users_read.yaml": passingScenario})

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ users_read")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestTestCommand_Fail(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"users_read.yaml":    passingScenario,
		"users_missing.yaml": failingScenario,
	})

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ users_missing")
	assert.Contains(t, stdout, "unexpected error NOT_FOUND")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"users_read.yaml": passingScenario})

	stdout, _, err := execute(t, "test", dir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "users_read", resp.Data.Scenarios[0].Name)
}

func TestTestCommand_JSONFailure(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"users_missing.yaml": failingScenario})

	stdout, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"users_read.yaml":    passingScenario,
		"users_missing.yaml": failingScenario,
	})

	stdout, _, err := execute(t, "test", dir, "--filter", "*_read")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 total")
	assert.NotContains(t, stdout, "users_missing")
}

func TestTestCommand_Golden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"users_read.yaml": passingScenario})
	goldenPath := filepath.Join(dir, "golden", "users_read.golden")

	stdout, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ users_read (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"users_read"`)
	assert.Contains(t, string(golden), `"result":{"_id":"u1","name":"Ada"}`)

	// The golden directory is not scanned for scenarios.
	_, _, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"users_read","trace":[]}`), 0o644))
	stdout, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "trace does not match golden file")
}

func TestTestCommand_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		stdout, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stdout, ErrCodeNotFound)
	})

	t.Run("bad filter", func(t *testing.T) {
		dir := writeScenarios(t, map[string]string{"users_read.yaml": passingScenario})
		_, _, err := execute(t, "test", dir, "--filter", "[")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("unloadable scenario", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0o644))
		stdout, _, err := execute(t, "test", dir)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, stdout, "✗ broken.yaml")
		assert.Contains(t, stdout, "failed to load scenario")
	})

	t.Run("empty directory", func(t *testing.T) {
		stdout, _, err := execute(t, "test", t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, stdout, "No scenarios found.")
	})
}
