package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/crudq/internal/docstore"
	"github.com/roach88/crudq/internal/query"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Route, event.Op)
			if event.Error != "" {
				fmt.Fprintf(&buf, " -> %s", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// matchesEvent reports whether an event is op on route; an empty route
// matches every route.
func matchesEvent(event TraceEvent, route, op string) bool {
	return event.Op == op && (route == "" || event.Route == route)
}

// assertTraceContains checks that the trace contains the operation.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesEvent(event, assertion.Route, assertion.Op) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s on route %q", assertion.Op, assertion.Route),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if operations first appear in the specified order.
// Operations don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if positions[event.Op] == 0 {
			positions[event.Op] = i + 1 // 1-indexed for readability
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev := assertion.Ops[i-1]
		curr := assertion.Ops[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the operation ran exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesEvent(event, assertion.Route, assertion.Op) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState looks the stored document up by equality on every Where
// field and checks the expected values with subset semantics. The lookup goes
// through the store's own query path, so field paths are validated and
// values are bound as parameters.
func assertFinalState(ctx context.Context, st *docstore.Store, assertion Assertion) error {
	filter := query.Filter{}
	for field, v := range assertion.Where {
		filter[field] = query.Condition{query.OpEq: v}
	}
	whereDesc := formatWhereClause(assertion.Where)

	docs, err := st.Collection(assertion.Collection).Find(ctx, &query.Assembled{
		Collection: assertion.Collection,
		Filter:     filter,
		Many:       true,
	})
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query collection %s", assertion.Collection),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if assertion.Absent {
		if len(docs) > 0 {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("no document in %s where %s", assertion.Collection, whereDesc),
				Actual:   fmt.Sprintf("%d document(s) matched", len(docs)),
			}
		}
		return nil
	}

	switch len(docs) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("document in %s where %s", assertion.Collection, whereDesc),
			Actual:   "document not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one document in %s where %s", assertion.Collection, whereDesc),
			Actual:   "multiple documents matched (assertion is ambiguous)",
		}
	}

	actual, err := plain(docs[0])
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	expected, err := plain(assertion.Expect)
	if err != nil {
		return fmt.Errorf("encode expectation: %w", err)
	}
	if path, ok := matchSubset(actual, expected, ""); !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", path, lookup(expected, path)),
			Actual:   fmt.Sprintf("%s = %v", path, lookup(actual, path)),
		}
	}
	return nil
}

// formatWhereClause creates a human-readable description of Where conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// matchSubset checks that actual contains expected. Mappings match when every
// expected key is present and matches; extra keys in actual are ignored.
// Anything else must be equal. On mismatch the dotted path of the first
// differing key is returned.
func matchSubset(actual, expected any, path string) (string, bool) {
	exp, ok := expected.(map[string]any)
	if !ok {
		return path, valuesEqual(actual, expected)
	}
	act, ok := actual.(map[string]any)
	if !ok {
		return path, false
	}

	keys := make([]string, 0, len(exp))
	for k := range exp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sub := k
		if path != "" {
			sub = path + "." + k
		}
		av, exists := act[k]
		if !exists {
			return sub, false
		}
		if p, ok := matchSubset(av, exp[k], sub); !ok {
			return p, false
		}
	}
	return path, true
}

// lookup follows a dotted path through nested mappings.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, seg := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[seg]
	}
	return v
}

// valuesEqual compares two values in their JSON shape.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *docstore.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires store context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
