// Package mongostore runs assembled queries against MongoDB.
//
// Filters, sorts and projections are translated to BSON documents by pure
// builder functions; joins are resolved with one $in query per population
// node through the shared populate package, the same way docstore resolves
// them. Identifier fields hold ObjectIDs in the database and 24-character hex
// strings everywhere else.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/crudq/internal/query"
)

// Store is a connected MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	ids    idCodec
}

// Option configures a Store.
type Option func(*Store)

// WithObjectIDFields lists fields besides _id that hold ObjectIDs, typically
// foreign keys such as "authorId".
func WithObjectIDFields(fields ...string) Option {
	return func(s *Store) {
		s.ids = newIDCodec(fields)
	}
}

// Open connects to uri and checks the server answers.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	if database == "" {
		return nil, fmt.Errorf("mongostore: database name is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return New(client, database, opts...), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	s := &Store{
		client: client,
		db:     client.Database(database),
		ids:    newIDCodec(nil),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Collection returns the crud.Store view of one collection.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, coll: s.db.Collection(name), name: name}
}

// Fetch returns every document of collection matching f. It serves
// population lookups.
func (s *Store) Fetch(ctx context.Context, collection string, f query.Filter) ([]query.Document, error) {
	filter, err := s.ids.filter(f)
	if err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(Sort(nil)))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", collection, err)
	}
	return decodeAll(ctx, cursor, collection)
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor, collection string) ([]query.Document, error) {
	defer cursor.Close(ctx)
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongostore: find %s results: %w", collection, err)
	}
	docs := make([]query.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromBSON(m))
	}
	return docs, nil
}

// decodeOne decodes a single result, mapping "no documents" to nil.
func decodeOne(res *mongo.SingleResult, what string) (query.Document, error) {
	var m bson.M
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongostore: %s: %w", what, err)
	}
	return fromBSON(m), nil
}
