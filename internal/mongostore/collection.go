package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/crudq/internal/populate"
	"github.com/roach88/crudq/internal/query"
)

// Collection is one MongoDB collection. It implements crud.Store.
//
// "First match" for writes follows _id order, the tiebreaker reads use.
type Collection struct {
	store *Store
	coll  *mongo.Collection
	name  string
}

// FindOne returns the first match populated and projected, or nil.
func (c *Collection) FindOne(ctx context.Context, q *query.Assembled) (query.Document, error) {
	one := *q
	one.Skip = 0
	one.Limit = 1
	docs, err := c.Find(ctx, &one)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Find returns every match populated and projected.
func (c *Collection) Find(ctx context.Context, q *query.Assembled) ([]query.Document, error) {
	if res := query.Validate(q); !res.Valid {
		return nil, res.Err()
	}
	if q.Collection != c.name {
		return nil, fmt.Errorf("mongostore: query targets collection %q, store serves %q", q.Collection, c.name)
	}
	filter, err := c.store.ids.filter(q.Filter)
	if err != nil {
		return nil, err
	}
	cursor, err := c.coll.Find(ctx, filter, FindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", c.name, err)
	}
	docs, err := decodeAll(ctx, cursor, c.name)
	if err != nil {
		return nil, err
	}

	if err := populate.Apply(ctx, c.store, docs, q.Populate); err != nil {
		return nil, err
	}
	for i, doc := range docs {
		docs[i] = populate.Project(q.Projection, doc, q.Populate)
	}
	return docs, nil
}

// Count returns the number of documents matching f.
func (c *Collection) Count(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := c.store.ids.filter(f)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongostore: count %s: %w", c.name, err)
	}
	return n, nil
}

// Create inserts the documents with one InsertMany. Documents without an _id
// get a new ObjectID.
func (c *Collection) Create(ctx context.Context, docs ...query.Document) ([]query.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	batch := make([]any, 0, len(docs))
	out := make([]query.Document, 0, len(docs))
	for _, doc := range docs {
		stored := doc.Clone()
		if stored == nil {
			stored = query.Document{}
		}
		if stored["_id"] == nil {
			stored["_id"] = bson.NewObjectID().Hex()
		}
		batch = append(batch, c.store.ids.document(stored))
		out = append(out, stored)
	}
	if _, err := c.coll.InsertMany(ctx, batch); err != nil {
		return nil, fmt.Errorf("mongostore: create %s: %w", c.name, err)
	}
	return out, nil
}

// FindOneAndUpdate $sets every key of doc except _id on the first match and
// returns the document after the update.
func (c *Collection) FindOneAndUpdate(ctx context.Context, f query.Filter, doc query.Document) (query.Document, error) {
	filter, err := c.store.ids.filter(f)
	if err != nil {
		return nil, err
	}
	set := withoutID(doc)
	if len(set) == 0 {
		return decodeOne(c.coll.FindOne(ctx, filter, options.FindOne().SetSort(Sort(nil))), "update "+c.name)
	}
	res := c.coll.FindOneAndUpdate(ctx, filter,
		bson.D{{Key: "$set", Value: c.store.ids.document(set)}},
		options.FindOneAndUpdate().
			SetSort(Sort(nil)).
			SetReturnDocument(options.After),
	)
	return decodeOne(res, "update "+c.name)
}

// FindOneAndDelete removes the first match and returns it.
func (c *Collection) FindOneAndDelete(ctx context.Context, f query.Filter) (query.Document, error) {
	filter, err := c.store.ids.filter(f)
	if err != nil {
		return nil, err
	}
	res := c.coll.FindOneAndDelete(ctx, filter, options.FindOneAndDelete().SetSort(Sort(nil)))
	return decodeOne(res, "delete "+c.name)
}

// ReplaceOne replaces the first match with doc. The stored _id is kept.
func (c *Collection) ReplaceOne(ctx context.Context, f query.Filter, doc query.Document) error {
	filter, err := c.store.ids.filter(f)
	if err != nil {
		return err
	}
	if _, err := c.coll.ReplaceOne(ctx, filter, c.store.ids.document(withoutID(doc))); err != nil {
		return fmt.Errorf("mongostore: replace %s: %w", c.name, err)
	}
	return nil
}
