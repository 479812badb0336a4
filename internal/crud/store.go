package crud

import (
	"context"

	"github.com/roach88/crudq/internal/query"
)

// Store executes assembled queries against one collection.
//
// Implemented by docstore.Collection (SQLite) and mongostore.Collection
// (MongoDB). Implementations populate and project results as the assembled
// query describes. Errors are returned to the caller untouched.
type Store interface {
	// FindOne returns the first match, or nil and no error when nothing
	// matches.
	FindOne(ctx context.Context, q *query.Assembled) (query.Document, error)

	// Find returns all matches in the query's sort order, honoring skip and
	// limit.
	Find(ctx context.Context, q *query.Assembled) ([]query.Document, error)

	// Count returns the number of documents matching f.
	Count(ctx context.Context, f query.Filter) (int64, error)

	// FindOneAndUpdate sets the top-level keys of doc on the first match and
	// returns the updated document, or nil when nothing matched.
	FindOneAndUpdate(ctx context.Context, f query.Filter, doc query.Document) (query.Document, error)

	// FindOneAndDelete removes the first match and returns it, or nil when
	// nothing matched.
	FindOneAndDelete(ctx context.Context, f query.Filter) (query.Document, error)

	// Create inserts the documents and returns them as stored, with
	// generated primary keys filled in.
	Create(ctx context.Context, docs ...query.Document) ([]query.Document, error)

	// ReplaceOne replaces the body of the first match with doc.
	ReplaceOne(ctx context.Context, f query.Filter, doc query.Document) error
}
