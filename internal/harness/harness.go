package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/crudq/internal/crud"
	"github.com/roach88/crudq/internal/docstore"
	"github.com/roach88/crudq/internal/route"
	"github.com/roach88/crudq/internal/schema"
	"github.com/roach88/crudq/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and id generator.
type Harness struct {
	store    *docstore.Store
	graph    *schema.Graph
	routes   route.Table
	services map[string]*crud.Service
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger the harness and its services write to.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Load the schema and routes, and check routes against the schema
//  2. Open an in-memory store with sequential id generation
//  3. Insert seed documents
//  4. Run flow steps, checking expect clauses
//  5. Evaluate assertions against the trace and the store
//
// A failed expectation or assertion fails the Result; an error is returned
// only when the scenario cannot run (bad schema, store failure).
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	graph, err := schema.LoadDir(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	routes, err := route.Load(scenario.Routes)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	if err := routes.CheckAll(graph); err != nil {
		return nil, fmt.Errorf("failed to check routes: %w", err)
	}

	st, err := docstore.Open(":memory:",
		docstore.WithIDGenerator(testutil.NewSequenceIDGenerator(scenario.IDPrefix)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		graph:    graph,
		routes:   routes,
		services: make(map[string]*crud.Service),
		clock:    testutil.NewDeterministicClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(h)
	}

	ctx := context.Background()
	if err := h.executeSeed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to execute seed: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSeed inserts seed documents straight into the store.
func (h *Harness) executeSeed(ctx context.Context, seed []SeedStep) error {
	for i, step := range seed {
		if len(step.Docs) == 0 {
			continue
		}
		created, err := h.store.Collection(step.Collection).Create(ctx, step.Docs...)
		if err != nil {
			return fmt.Errorf("seed step %d: %w", i, err)
		}
		h.logger.Info("seed step completed",
			"step", i,
			"collection", step.Collection,
			"count", len(created),
		)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Client errors (crud.Error) are outcomes: they are traced and checked
// against the expect clause. Any other error aborts the scenario.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		svc, err := h.service(step.Route)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		args, err := stepArgs(step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		ev := TraceEvent{
			Seq:   h.clock.Next(),
			Route: step.Route,
			Op:    step.Op,
			Args:  args,
		}

		out, err := invoke(ctx, svc, step)
		var crudErr *crud.Error
		switch {
		case errors.As(err, &crudErr):
			ev.Error = string(crudErr.Code)
		case err != nil:
			return fmt.Errorf("flow step %d (%s %s): %w", i, step.Route, step.Op, err)
		default:
			if ev.Result, err = plain(out); err != nil {
				return fmt.Errorf("flow step %d: encoding result: %w", i, err)
			}
		}
		result.AddEvent(ev)

		for _, msg := range checkExpect(i, step, ev, svc.Entity().PrimaryKey()) {
			result.AddError(msg)
		}

		h.logger.Info("flow step completed",
			"step", i,
			"route", step.Route,
			"op", step.Op,
			"seq", ev.Seq,
			"error", ev.Error,
		)
	}
	return nil
}

// service returns the crud service of a route, creating it on first use.
func (h *Harness) service(routeName string) (*crud.Service, error) {
	if svc, ok := h.services[routeName]; ok {
		return svc, nil
	}
	opts, err := h.routes.Get(routeName)
	if err != nil {
		return nil, err
	}
	entity := h.graph.MustEntity(opts.Entity)
	svc, err := crud.New(h.graph, opts, h.store.Collection(entity.Collection), crud.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	h.services[routeName] = svc
	return svc, nil
}

func invoke(ctx context.Context, svc *crud.Service, step FlowStep) (any, error) {
	d := step.Descriptor
	switch step.Op {
	case OpGetMany:
		return svc.GetMany(ctx, d)
	case OpGetOne:
		return svc.GetOne(ctx, d)
	case OpCreateOne:
		return svc.CreateOne(ctx, d, step.Payload)
	case OpCreateMany:
		return svc.CreateMany(ctx, d, step.Bulk)
	case OpUpdateOne:
		return svc.UpdateOne(ctx, d, step.Payload)
	case OpReplaceOne:
		return svc.ReplaceOne(ctx, d, step.Payload)
	case OpDeleteOne:
		return svc.DeleteOne(ctx, d)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// stepArgs is what a step sent, in its JSON shape.
func stepArgs(step FlowStep) (map[string]any, error) {
	args := map[string]any{}
	add := func(key string, v any) error {
		p, err := plain(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		args[key] = p
		return nil
	}
	if step.Descriptor != nil {
		if err := add("descriptor", step.Descriptor); err != nil {
			return nil, err
		}
	}
	if step.Payload != nil {
		if err := add("payload", step.Payload); err != nil {
			return nil, err
		}
	}
	if step.Bulk != nil {
		if err := add("bulk", step.Bulk); err != nil {
			return nil, err
		}
	}
	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}

// checkExpect compares a traced step with its expect clause.
func checkExpect(index int, step FlowStep, ev TraceEvent, pk string) []string {
	prefix := fmt.Sprintf("flow[%d] %s %s", index, step.Route, step.Op)
	exp := step.Expect
	if exp == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("%s: unexpected error %s", prefix, ev.Error)}
		}
		return nil
	}

	if exp.Error != ev.Error {
		if exp.Error == "" {
			return []string{fmt.Sprintf("%s: unexpected error %s", prefix, ev.Error)}
		}
		return []string{fmt.Sprintf("%s: expected error %s, got %q", prefix, exp.Error, ev.Error)}
	}
	if ev.Error != "" {
		return nil
	}

	var errs []string
	docs := documents(ev.Result)
	if exp.Count != nil && len(docs) != *exp.Count {
		errs = append(errs, fmt.Sprintf("%s: expected %d document(s), got %d", prefix, *exp.Count, len(docs)))
	}
	if exp.IDs != nil {
		want, _ := plain(exp.IDs)
		got := make([]any, 0, len(docs))
		for _, doc := range docs {
			got = append(got, doc[pk])
		}
		if !valuesEqual(got, want) {
			errs = append(errs, fmt.Sprintf("%s: expected ids %v, got %v", prefix, want, got))
		}
	}
	if exp.Result != nil {
		want, _ := plain(exp.Result)
		if path, ok := matchSubset(ev.Result, want, ""); !ok {
			errs = append(errs, fmt.Sprintf("%s: result mismatch at %s: got %v", prefix, path, ev.Result))
		}
	}
	return errs
}

// documents extracts the returned documents from a result in its JSON
// shape: a list, a page envelope, a single document or nothing.
func documents(result any) []map[string]any {
	switch v := result.(type) {
	case nil:
		return nil
	case []any:
		return mapsOf(v)
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			if _, paged := v["pageCount"]; paged {
				return mapsOf(data)
			}
		}
		return []map[string]any{v}
	}
	return nil
}

func mapsOf(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, elem := range list {
		if m, ok := elem.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// plain converts v to the generic shape its JSON encoding has. Numbers become
// float64, so YAML expectations and store results compare equal.
func plain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
