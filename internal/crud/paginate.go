package crud

import (
	"encoding/json"

	"github.com/roach88/crudq/internal/query"
)

// ManyResult is the result of GetMany: either a bare list or, when the
// caller asked for a page, a page envelope.
type ManyResult struct {
	Data     []query.Document
	Envelope *query.PageEnvelope
}

// Paginated reports whether the result carries a page envelope.
func (r *ManyResult) Paginated() bool {
	return r.Envelope != nil
}

// Documents returns the fetched documents in either shape.
func (r *ManyResult) Documents() []query.Document {
	if r.Envelope != nil {
		return r.Envelope.Data
	}
	return r.Data
}

// MarshalJSON encodes the envelope when present, otherwise a bare array.
func (r *ManyResult) MarshalJSON() ([]byte, error) {
	if r.Envelope != nil {
		return json.Marshal(r.Envelope)
	}
	if r.Data == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Data)
}

// wantsPage reports whether the caller asked for a page (page or offset) and
// the resolved limit bounds it.
func wantsPage(d *query.Descriptor, limit int) bool {
	return (d.Page != nil || d.Offset != nil) && limit > 0
}

// shapePage builds the envelope for one page of a collection query.
func shapePage(data []query.Document, total int64, limit, skip int) *query.PageEnvelope {
	if data == nil {
		data = []query.Document{}
	}
	env := &query.PageEnvelope{
		Data:      data,
		Count:     len(data),
		Total:     total,
		Page:      1,
		PageCount: 1,
	}
	if limit > 0 {
		env.Page = skip/limit + 1
		if total > 0 {
			env.PageCount = int((total + int64(limit) - 1) / int64(limit))
		}
	}
	return env
}
