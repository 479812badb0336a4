package crud

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/crudq/internal/query"
)

// fakeStore is an in-memory Store that records every call. It understands
// $eq, $ne and $in, which is all the flows under test produce.
type fakeStore struct {
	mu     sync.Mutex
	docs   []query.Document
	calls  []string
	nextID int

	lastFind  *query.Assembled
	lastCount query.Filter
	updates   []query.Document
	replaced  []query.Document

	findErr  error
	countErr error
}

func newFakeStore(docs ...query.Document) *fakeStore {
	return &fakeStore{docs: docs}
}

func (f *fakeStore) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeStore) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeStore) FindOne(_ context.Context, q *query.Assembled) (query.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindOne")
	f.lastFind = q
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, doc := range f.docs {
		if matches(doc, q.Filter) {
			return q.Projection.Apply(doc), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Find(_ context.Context, q *query.Assembled) ([]query.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Find")
	f.lastFind = q
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []query.Document
	for _, doc := range f.docs {
		if matches(doc, q.Filter) {
			out = append(out, q.Projection.Apply(doc))
		}
	}
	if q.Skip >= len(out) {
		return []query.Document{}, nil
	}
	out = out[q.Skip:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context, filter query.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Count")
	f.lastCount = filter
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, doc := range f.docs {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindOneAndUpdate(_ context.Context, filter query.Filter, doc query.Document) (query.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindOneAndUpdate")
	f.updates = append(f.updates, doc.Clone())
	for _, existing := range f.docs {
		if matches(existing, filter) {
			for k, v := range doc {
				existing[k] = v
			}
			return existing.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindOneAndDelete(_ context.Context, filter query.Filter) (query.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindOneAndDelete")
	for i, doc := range f.docs {
		if matches(doc, filter) {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			return doc, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(_ context.Context, docs ...query.Document) ([]query.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	out := make([]query.Document, 0, len(docs))
	for _, doc := range docs {
		stored := doc.Clone()
		if _, ok := stored["_id"]; !ok {
			f.nextID++
			stored["_id"] = fmt.Sprintf("id-%d", f.nextID)
		}
		f.docs = append(f.docs, stored)
		out = append(out, stored.Clone())
	}
	return out, nil
}

func (f *fakeStore) ReplaceOne(_ context.Context, filter query.Filter, doc query.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReplaceOne")
	f.replaced = append(f.replaced, doc.Clone())
	for i, existing := range f.docs {
		if matches(existing, filter) {
			f.docs[i] = doc.Clone()
			return nil
		}
	}
	return nil
}

func matches(doc query.Document, filter query.Filter) bool {
	for field, cond := range filter {
		for op, want := range cond {
			got := fmt.Sprint(doc[field])
			switch op {
			case query.OpEq:
				if got != fmt.Sprint(want) {
					return false
				}
			case query.OpNe:
				if got == fmt.Sprint(want) {
					return false
				}
			case query.OpIn:
				found := false
				for _, v := range query.Operands(want) {
					if got == fmt.Sprint(v) {
						found = true
					}
				}
				if !found {
					return false
				}
			}
		}
	}
	return true
}
