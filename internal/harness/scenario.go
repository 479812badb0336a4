package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crudq/internal/query"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory.
	// Relative paths are resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Routes is the routes file, resolved like Schema.
	Routes string `yaml:"routes"`

	// IDPrefix prefixes generated _id values. Default: "id".
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// Seed inserts documents directly into collections before the flow.
	// Seed documents bypass route policy.
	Seed []SeedStep `yaml:"seed,omitempty"`

	// Flow is the sequence of operations run through the routes.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and store contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SeedStep inserts documents into one collection.
type SeedStep struct {
	Collection string           `yaml:"collection"`
	Docs       []query.Document `yaml:"docs"`
}

// FlowStep runs one operation through a route.
type FlowStep struct {
	Route string `yaml:"route"`

	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	Descriptor *query.Descriptor `yaml:"descriptor,omitempty"`

	// Payload is the body of createOne, updateOne and replaceOne.
	Payload query.Document `yaml:"payload,omitempty"`

	// Bulk is the body of createMany.
	Bulk []query.Document `yaml:"bulk,omitempty"`

	// Expect validates the step's outcome. If nil, the step must not fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected crud error code (INVALID_INPUT, NOT_FOUND).
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is matched against the JSON shape of the returned value.
	// Subset match: only specified keys are checked; nested mappings are
	// matched the same way.
	Result map[string]any `yaml:"result,omitempty"`

	// Count is the expected number of returned documents.
	Count *int `yaml:"count,omitempty"`

	// IDs are the expected primary keys of the returned documents, in order.
	IDs []any `yaml:"ids,omitempty"`
}

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Route and Op select trace events (trace_contains, trace_count).
	// An empty Route matches every route.
	Route string `yaml:"route,omitempty"`
	Op    string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Collection, Where and Expect select and check a stored document
	// (final_state). Where fields are matched by equality.
	Collection string         `yaml:"collection,omitempty"`
	Where      map[string]any `yaml:"where,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no stored document matches Where (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Operation names.
const (
	OpGetMany    = "getMany"
	OpGetOne     = "getOne"
	OpCreateOne  = "createOne"
	OpCreateMany = "createMany"
	OpUpdateOne  = "updateOne"
	OpReplaceOne = "replaceOne"
	OpDeleteOne  = "deleteOne"
)

// Ops lists the supported operations.
var Ops = []string{OpGetMany, OpGetOne, OpCreateOne, OpCreateMany, OpUpdateOne, OpReplaceOne, OpDeleteOne}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Schema and routes paths are resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	s.Schema = resolve(base, s.Schema)
	s.Routes = resolve(base, s.Routes)

	if err := validatePaths(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. Paths are left as they
// are and not checked.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Routes == "" {
		return fmt.Errorf("routes is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Seed {
		if step.Collection == "" {
			return fmt.Errorf("seed[%d]: collection is required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Route == "" {
			return fmt.Errorf("flow[%d]: route is required", i)
		}
		if !slices.Contains(Ops, step.Op) {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validatePaths checks that the schema directory and routes file exist.
func validatePaths(s *Scenario) error {
	if info, err := os.Stat(s.Schema); err != nil || !info.IsDir() {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}
	if _, err := os.Stat(s.Routes); os.IsNotExist(err) {
		return fmt.Errorf("routes file not found: %s", s.Routes)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for final_state", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect (or absent) is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
