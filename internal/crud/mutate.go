package crud

import (
	"context"

	"github.com/roach88/crudq/internal/query"
)

// CreateOne saves payload ⊕ params ⊕ authPersist. An empty payload is
// rejected before the store is called.
func (s *Service) CreateOne(ctx context.Context, d *query.Descriptor, payload query.Document) (query.Document, error) {
	d = orEmpty(d)
	doc := s.prepareForSave(d, payload)
	if doc == nil {
		return nil, invalidInput(s.entity.Name, "", MsgEmptyPayload)
	}
	created, err := s.store.Create(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document created", "entity", s.entity.Name, "count", len(created))
	if len(created) == 0 {
		return nil, nil
	}
	return created[0], nil
}

// CreateMany applies params and authPersist to every item. Empty items are
// dropped; an empty bulk, or one with nothing left, is rejected.
func (s *Service) CreateMany(ctx context.Context, d *query.Descriptor, bulk []query.Document) ([]query.Document, error) {
	d = orEmpty(d)
	if len(bulk) == 0 {
		return nil, invalidInput(s.entity.Name, "", MsgEmptyPayload)
	}
	docs := make([]query.Document, 0, len(bulk))
	for _, item := range bulk {
		if doc := s.prepareForSave(d, item); doc != nil {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, invalidInput(s.entity.Name, "", MsgEmptyPayload)
	}
	created, err := s.store.Create(ctx, docs...)
	if err != nil {
		return nil, err
	}
	s.logger.Info("documents created", "entity", s.entity.Name, "count", len(created))
	return created, nil
}

// UpdateOne merges the payload into the existing document and writes it by
// primary key.
//
// The existing document is fetched shallow (params only) when the route
// returns shallow results, otherwise with the full read policy. Populated
// relations are dropped from the merge base. A shallow route returns the
// updated document; otherwise the params are refreshed from it and the
// document is read again with the full read policy.
func (s *Service) UpdateOne(ctx context.Context, d *query.Descriptor, payload query.Document) (query.Document, error) {
	d = orEmpty(d)
	if err := s.requireIdentity(d); err != nil {
		return nil, err
	}
	w := s.opts.Routes.UpdateOneBase

	found, err := s.fetchForWrite(ctx, d, w.ReturnShallow)
	if err != nil {
		return nil, err
	}

	toSave := mergeUpdate(s.stripRelations(found), payload, d.Params(), d.AuthPersist, w.AllowParamsOverride)
	for _, pk := range s.entity.PrimaryKeys {
		delete(toSave, pk)
	}

	updated, err := s.store.FindOneAndUpdate(ctx, s.identity(found), toSave)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, notFound(s.entity.Name)
	}
	s.logger.Info("document updated", "entity", s.entity.Name, "id", found[s.entity.PrimaryKey()])

	if w.ReturnShallow {
		return updated, nil
	}
	return s.GetOne(ctx, refreshParams(d, updated))
}

// ReplaceOne writes payload ⊕ params ⊕ authPersist (params ⊕ payload ⊕
// authPersist when the route allows overriding params) over the existing
// document, keeping its primary key.
func (s *Service) ReplaceOne(ctx context.Context, d *query.Descriptor, payload query.Document) (query.Document, error) {
	d = orEmpty(d)
	if err := s.requireIdentity(d); err != nil {
		return nil, err
	}
	w := s.opts.Routes.ReplaceOneBase

	found, err := s.fetchForWrite(ctx, d, w.ReturnShallow)
	if err != nil {
		return nil, err
	}

	toSave := mergeReplace(payload, d.Params(), d.AuthPersist, w.AllowParamsOverride)
	for _, pk := range s.entity.PrimaryKeys {
		toSave[pk] = found[pk]
	}

	id := s.identity(found)
	if err := s.store.ReplaceOne(ctx, id, toSave); err != nil {
		return nil, err
	}
	s.logger.Info("document replaced", "entity", s.entity.Name, "id", found[s.entity.PrimaryKey()])

	if w.ReturnShallow {
		doc, err := s.store.FindOne(ctx, &query.Assembled{Collection: s.entity.Collection, Filter: id})
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, notFound(s.entity.Name)
		}
		return doc, nil
	}
	return s.GetOne(ctx, refreshParams(d, toSave))
}

// DeleteOne checks the document exists, then deletes it by primary key. The
// deleted document merged with the params is returned when the route asks
// for it, otherwise nil.
func (s *Service) DeleteOne(ctx context.Context, d *query.Descriptor) (query.Document, error) {
	d = orEmpty(d)
	if err := s.requireIdentity(d); err != nil {
		return nil, err
	}
	found, err := s.getOneShallow(ctx, d)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.FindOneAndDelete(ctx, s.identity(found))
	if err != nil {
		return nil, err
	}
	s.logger.Info("document deleted", "entity", s.entity.Name, "id", found[s.entity.PrimaryKey()])

	if !s.opts.Routes.DeleteOneBase.ReturnDeleted {
		return nil, nil
	}
	if deleted == nil {
		return nil, notFound(s.entity.Name)
	}
	return overlays(deleted, d.Params()), nil
}

func (s *Service) fetchForWrite(ctx context.Context, d *query.Descriptor, shallow bool) (query.Document, error) {
	if shallow {
		return s.getOneShallow(ctx, d)
	}
	return s.GetOne(ctx, d)
}

// requireIdentity rejects writes that carry no params: without them the
// lookup would match an arbitrary document.
func (s *Service) requireIdentity(d *query.Descriptor) error {
	if len(d.Params()) == 0 {
		return invalidInput(s.entity.Name, "", "missing identity params")
	}
	return nil
}

// prepareForSave returns payload ⊕ params ⊕ authPersist, or nil for an empty
// payload.
func (s *Service) prepareForSave(d *query.Descriptor, payload query.Document) query.Document {
	if len(payload) == 0 {
		return nil
	}
	return overlays(payload, d.Params(), d.AuthPersist)
}

// stripRelations copies doc without populated relations. A relation stored
// under its own local field is put back to the referenced key.
func (s *Service) stripRelations(doc query.Document) query.Document {
	out := doc.Clone()
	for name, rel := range s.entity.Relations {
		v, ok := out[name]
		if !ok {
			continue
		}
		if name != rel.LocalField {
			delete(out, name)
			continue
		}
		if ref, ok := asDocument(v); ok {
			out[name] = ref[rel.ForeignField]
		}
	}
	return out
}

// refreshParams copies d with every params value re-read from doc.
func refreshParams(d *query.Descriptor, doc query.Document) *query.Descriptor {
	out := *d
	out.ParamsFilter = make([]query.ParamFilter, len(d.ParamsFilter))
	for i, p := range d.ParamsFilter {
		out.ParamsFilter[i] = query.ParamFilter{Field: p.Field, Value: doc[p.Field]}
	}
	return &out
}

// mergeUpdate builds the document UpdateOne writes:
// existing ⊕ payload ⊕ params ⊕ auth, or existing ⊕ params ⊕ payload ⊕ auth
// when params may be overridden.
func mergeUpdate(existing, payload, params, auth query.Document, override bool) query.Document {
	if override {
		return overlays(existing, params, payload, auth)
	}
	return overlays(existing, payload, params, auth)
}

// mergeReplace is mergeUpdate without the existing document.
func mergeReplace(payload, params, auth query.Document, override bool) query.Document {
	return mergeUpdate(nil, payload, params, auth, override)
}

// overlays merges documents left to right; later documents win per key.
func overlays(docs ...query.Document) query.Document {
	out := query.Document{}
	for _, doc := range docs {
		for k, v := range doc {
			out[k] = v
		}
	}
	return out
}

func asDocument(v any) (query.Document, bool) {
	switch m := v.(type) {
	case query.Document:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func orEmpty(d *query.Descriptor) *query.Descriptor {
	if d == nil {
		return &query.Descriptor{}
	}
	return d
}
