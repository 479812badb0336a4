package mongostore

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/crudq/internal/populate"
	"github.com/roach88/crudq/internal/query"
)

// idCodec converts identifier values between their API form (24-character
// hex strings) and ObjectIDs for a fixed set of fields.
type idCodec struct {
	fields map[string]bool
}

func newIDCodec(fields []string) idCodec {
	c := idCodec{fields: map[string]bool{"_id": true}}
	for _, f := range fields {
		c.fields[f] = true
	}
	return c
}

// toID returns v as an ObjectID when it is a valid hex id, else v.
func toID(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	oid, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return v
	}
	return oid
}

func (c idCodec) value(field string, v any) any {
	if !c.fields[field] {
		return v
	}
	if vals := query.Operands(v); vals != nil {
		if _, isString := v.(string); !isString {
			out := make(bson.A, len(vals))
			for i, e := range vals {
				out[i] = toID(e)
			}
			return out
		}
	}
	return toID(v)
}

// filter builds the MongoDB filter for f. Fields and operators are emitted in
// sorted order. The query is validated first so nothing outside the allowed
// operator set reaches the server.
func (c idCodec) filter(f query.Filter) (bson.D, error) {
	if res := query.ValidateFilter(f); !res.Valid {
		return nil, res.Err()
	}
	out := bson.D{}
	for _, field := range f.Fields() {
		cond := f[field]
		ops := make([]query.Operator, 0, len(cond))
		for op := range cond {
			ops = append(ops, op)
		}
		slices.Sort(ops)

		expr := bson.D{}
		for _, op := range ops {
			operand := cond[op]
			if op != query.OpExists {
				operand = c.value(field, operand)
			}
			if op == query.OpIn || op == query.OpNin {
				operand = asArray(operand)
			}
			expr = append(expr, bson.E{Key: string(op), Value: operand})
		}
		out = append(out, bson.E{Key: field, Value: expr})
	}
	return out, nil
}

func asArray(v any) bson.A {
	if a, ok := v.(bson.A); ok {
		return a
	}
	return bson.A(query.Operands(v))
}

// Sort builds the sort document. _id is appended as a tiebreaker unless the
// caller already sorts by it, so pages never overlap.
func Sort(sorts []query.Sort) bson.D {
	out := bson.D{}
	hasID := false
	for _, s := range sorts {
		out = append(out, bson.E{Key: s.Field, Value: s.Order.Direction()})
		hasID = hasID || s.Field == "_id"
	}
	if !hasID {
		out = append(out, bson.E{Key: "_id", Value: 1})
	}
	return out
}

// Projection builds the projection document, or nil for all fields. An
// inclusion projection hides _id unless it is listed.
func Projection(p query.Projection) bson.D {
	if p.IsZero() {
		return nil
	}
	out := bson.D{}
	if len(p.Include) > 0 {
		for _, f := range p.Include {
			out = append(out, bson.E{Key: f, Value: 1})
		}
		if !slices.Contains(p.Include, "_id") {
			out = append(out, bson.E{Key: "_id", Value: 0})
		}
		return out
	}
	for _, f := range p.Exclude {
		out = append(out, bson.E{Key: f, Value: 0})
	}
	return out
}

// FindOptions builds find options for q. The projection is widened to keep
// the local fields population reads.
func FindOptions(q *query.Assembled) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(Sort(q.Sort))
	if proj := Projection(populate.FetchProjection(q.Projection, q.Populate)); proj != nil {
		opts.SetProjection(proj)
	}
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

// document converts a document to BSON for writing, converting id fields.
func (c idCodec) document(doc query.Document) bson.D {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(bson.D, 0, len(doc))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: c.value(k, doc[k])})
	}
	return out
}

// fromBSON converts a decoded document to its API form: ObjectIDs become hex
// strings, int32 widens to int64, dates become time.Time and embedded
// documents become plain maps.
func fromBSON(m bson.M) query.Document {
	out := make(query.Document, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v any) any {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case int32:
		return int64(val)
	case bson.DateTime:
		return val.Time().UTC()
	case bson.M:
		return map[string]any(fromBSON(val))
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = fromValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = fromValue(e)
		}
		return out
	case time.Time:
		return val.UTC()
	}
	return v
}

// withoutID copies doc without its _id, which is immutable once stored.
func withoutID(doc query.Document) query.Document {
	out := doc.Clone()
	if out == nil {
		out = query.Document{}
	}
	delete(out, "_id")
	return out
}
