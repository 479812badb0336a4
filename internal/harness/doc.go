// Package harness runs conformance scenarios against crud routes.
//
// A scenario loads a CUE schema and a routes file, seeds collections of an
// in-memory document store, runs a flow of CRUD operations through the
// routes, and checks the outcome with expect clauses, assertions and an
// optional golden trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: ../blog           # CUE schema dir, relative to the scenario file
//	routes: ../routes.yaml    # routes file, relative to the scenario file
//	id_prefix: post           # generated _id values: post-0001, post-0002, ...
//	seed:
//	  - collection: users
//	    docs:
//	      - {_id: u1, name: Ada}
//	flow:
//	  - route: posts
//	    op: getMany
//	    descriptor: {page: 1}
//	    expect:
//	      count: 2
//	      result: {total: 2}
//	  - route: posts
//	    op: getOne
//	    descriptor:
//	      paramsFilter: [{field: _id, value: nope}]
//	    expect:
//	      error: NOT_FOUND
//	assertions:
//	  - type: trace_contains
//	    route: posts
//	    op: getMany
//	  - type: final_state
//	    collection: posts
//	    where: {_id: p1}
//	    expect: {title: First}
//
// # Operations
//
// getMany, getOne, createOne, createMany, updateOne, replaceOne and
// deleteOne, each calling the crud.Service method of the same name.
//
// # Assertion Types
//
//   - trace_contains: an operation ran on a route
//   - trace_order: operations ran in the given order
//   - trace_count: an operation ran exactly N times
//   - final_state: exactly one stored document matches where, and carries
//     the expected values (or, with absent, no document matches)
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite store. Trace sequence
// numbers come from testutil.DeterministicClock and generated ids from
// testutil.SequenceIDGenerator, so the same scenario always produces a
// byte-identical canonical trace for golden comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/paging.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
