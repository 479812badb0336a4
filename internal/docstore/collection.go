package docstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/crudq/internal/populate"
	"github.com/roach88/crudq/internal/query"
)

// Collection is one collection of a Store. It implements crud.Store.
//
// Writes run in a transaction that selects the first match and rewrites it
// by rowid, so "first" follows the same insertion order reads use.
type Collection struct {
	store *Store
	name  string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// FindOne returns the first match populated and projected, or nil when
// nothing matches.
func (c *Collection) FindOne(ctx context.Context, q *query.Assembled) (query.Document, error) {
	one := *q
	one.Skip = 0
	one.Limit = 1
	docs, err := c.find(ctx, &one)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Find returns every match populated and projected.
func (c *Collection) Find(ctx context.Context, q *query.Assembled) ([]query.Document, error) {
	return c.find(ctx, q)
}

func (c *Collection) find(ctx context.Context, q *query.Assembled) ([]query.Document, error) {
	if q.Collection != c.name {
		return nil, fmt.Errorf("query targets collection %q, store serves %q", q.Collection, c.name)
	}
	rows, err := c.store.selectRows(ctx, c.store.db, q)
	if err != nil {
		return nil, err
	}
	docs := make([]query.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.doc)
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
	stmt, params, err := c.store.compiler.Count(c.name, f)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	var n int64
	if err := c.store.db.QueryRowContext(ctx, stmt, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

// Create inserts the documents in one transaction. Documents without an _id
// get one from the store's IDGenerator. A duplicate _id fails the whole
// batch.
func (c *Collection) Create(ctx context.Context, docs ...query.Document) ([]query.Document, error) {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c.name, err)
	}
	defer tx.Rollback() // No-op if committed

	out := make([]query.Document, 0, len(docs))
	for _, doc := range docs {
		stored := doc.Clone()
		if stored == nil {
			stored = query.Document{}
		}
		if stored["_id"] == nil {
			stored["_id"] = c.store.ids.Generate()
		}
		id, err := idText(stored["_id"])
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		body, err := encodeDocument(stored)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)",
			c.name, id, body,
		); err != nil {
			return nil, fmt.Errorf("create %s %s: %w", c.name, id, err)
		}
		decoded, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create %s: %w", c.name, err)
	}
	return out, nil
}

// FindOneAndUpdate sets the top-level keys of doc on the first match. The
// _id of a stored document never changes.
func (c *Collection) FindOneAndUpdate(ctx context.Context, f query.Filter, doc query.Document) (query.Document, error) {
	var updated query.Document
	err := c.rewriteFirst(ctx, f, func(existing query.Document) query.Document {
		updated = existing.Clone()
		for k, v := range doc {
			if k == "_id" {
				continue
			}
			updated[k] = v
		}
		return updated
	})
	if err != nil || updated == nil {
		return nil, err
	}
	return c.reload(ctx, updated["_id"])
}

// ReplaceOne replaces the first match with doc, keeping the stored _id.
func (c *Collection) ReplaceOne(ctx context.Context, f query.Filter, doc query.Document) error {
	return c.rewriteFirst(ctx, f, func(existing query.Document) query.Document {
		replaced := doc.Clone()
		if replaced == nil {
			replaced = query.Document{}
		}
		replaced["_id"] = existing["_id"]
		return replaced
	})
}

// FindOneAndDelete removes the first match and returns it.
func (c *Collection) FindOneAndDelete(ctx context.Context, f query.Filter) (query.Document, error) {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", c.name, err)
	}
	defer tx.Rollback()

	r, err := c.first(ctx, tx, f)
	if err != nil || r == nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE rowid = ?", r.rowid); err != nil {
		return nil, fmt.Errorf("delete %s %s: %w", c.name, r.id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete %s: %w", c.name, err)
	}
	return r.doc, nil
}

// rewriteFirst replaces the body of the first match with fn's result inside
// one transaction. Nothing is written when nothing matches.
func (c *Collection) rewriteFirst(ctx context.Context, f query.Filter, fn func(query.Document) query.Document) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s: %w", c.name, err)
	}
	defer tx.Rollback()

	r, err := c.first(ctx, tx, f)
	if err != nil || r == nil {
		return err
	}
	body, err := encodeDocument(fn(r.doc))
	if err != nil {
		return fmt.Errorf("update %s %s: %w", c.name, r.id, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE documents SET body = ? WHERE rowid = ?", body, r.rowid); err != nil {
		return fmt.Errorf("update %s %s: %w", c.name, r.id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %s: %w", c.name, err)
	}
	return nil
}

func (c *Collection) first(ctx context.Context, qr querier, f query.Filter) (*row, error) {
	rows, err := c.store.selectRows(ctx, qr, &query.Assembled{Collection: c.name, Filter: f, Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// reload reads a document back by _id so callers see stored value types.
func (c *Collection) reload(ctx context.Context, id any) (query.Document, error) {
	r, err := c.first(ctx, c.store.db, query.Eq("_id", id))
	if err != nil || r == nil {
		return nil, err
	}
	return r.doc, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type row struct {
	rowid int64
	id    string
	doc   query.Document
}

// selectRows runs a compiled Select and decodes every row. Population and
// projection are left to the caller.
func (s *Store) selectRows(ctx context.Context, qr querier, q *query.Assembled) ([]row, error) {
	stmt, params, err := s.compiler.Select(q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	rows, err := qr.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var (
			r    row
			body string
		)
		if err := rows.Scan(&r.rowid, &r.id, &body); err != nil {
			return nil, fmt.Errorf("find %s: %w", q.Collection, err)
		}
		if r.doc, err = decodeDocument(body); err != nil {
			return nil, fmt.Errorf("find %s %s: %w", q.Collection, r.id, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	return out, nil
}
