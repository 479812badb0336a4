package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crudq/internal/query"
)

func postsFixture(t *testing.T) *Collection {
	t.Helper()
	c := createTestStore(t).Collection("posts")
	seed(t, c,
		query.Document{"_id": "p1", "title": "alpha", "views": 10, "status": "published", "pinned": true},
		query.Document{"_id": "p2", "title": "bravo", "views": 3, "status": "draft"},
		query.Document{"_id": "p3", "title": "charlie", "views": 25, "status": "published", "tag": nil},
		query.Document{"_id": "p4", "title": "delta", "views": 10.5, "status": "archived"},
	)
	return c
}

func ids(docs []query.Document) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d["_id"])
	}
	return out
}

func TestFind_Operators(t *testing.T) {
	c := postsFixture(t)

	tests := []struct {
		name   string
		filter query.Filter
		want   []any
	}{
		{"eq", query.Eq("status", "published"), []any{"p1", "p3"}},
		{"eq bool", query.Eq("pinned", true), []any{"p1"}},
		{"eq null matches missing and null", query.Eq("tag", nil), []any{"p1", "p2", "p3", "p4"}},
		{"ne keeps missing", query.Filter{"pinned": {query.OpNe: true}}, []any{"p2", "p3", "p4"}},
		{"gte", query.Filter{"views": {query.OpGte: 10}}, []any{"p1", "p3", "p4"}},
		{"range", query.Filter{"views": {query.OpGt: 3, query.OpLt: 25}}, []any{"p1", "p4"}},
		{"in", query.Filter{"status": {query.OpIn: []string{"draft", "archived"}}}, []any{"p2", "p4"}},
		{"empty in", query.Filter{"status": {query.OpIn: []any{}}}, []any{}},
		{"nin", query.Filter{"status": {query.OpNin: []any{"published"}}}, []any{"p2", "p4"}},
		{"exists", query.Filter{"tag": {query.OpExists: true}}, []any{"p3"}},
		{"not exists", query.Filter{"pinned": {query.OpExists: false}}, []any{"p2", "p3", "p4"}},
		{"string is not a number", query.Eq("views", "10"), []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := c.Find(context.Background(), &query.Assembled{Collection: "posts", Filter: tt.filter, Many: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestFind_SortSkipLimit(t *testing.T) {
	c := postsFixture(t)
	ctx := context.Background()

	docs, err := c.Find(ctx, &query.Assembled{
		Collection: "posts",
		Sort:       []query.Sort{{Field: "views", Order: query.Desc}},
		Many:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"p3", "p4", "p1", "p2"}, ids(docs))

	docs, err = c.Find(ctx, &query.Assembled{
		Collection: "posts",
		Sort:       []query.Sort{{Field: "status", Order: query.Asc}},
		Skip:       1,
		Limit:      2,
		Many:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"p2", "p1"}, ids(docs), "ties keep insertion order")

	docs, err = c.Find(ctx, &query.Assembled{Collection: "posts", Skip: 3, Many: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"p4"}, ids(docs))
}

func TestFind_Projection(t *testing.T) {
	c := postsFixture(t)

	doc, err := c.FindOne(context.Background(), &query.Assembled{
		Collection: "posts",
		Filter:     query.Eq("_id", "p1"),
		Projection: query.Projection{Include: []string{"_id", "title"}},
	})
	require.NoError(t, err)
	assert.Equal(t, query.Document{"_id": "p1", "title": "alpha"}, doc)
}

func TestFind_NumberTypes(t *testing.T) {
	c := postsFixture(t)
	doc, err := c.FindOne(context.Background(), &query.Assembled{Collection: "posts", Filter: query.Eq("_id", "p4")})
	require.NoError(t, err)
	assert.Equal(t, 10.5, doc["views"])

	doc, err = c.FindOne(context.Background(), &query.Assembled{Collection: "posts", Filter: query.Eq("_id", "p1")})
	require.NoError(t, err)
	assert.Equal(t, int64(10), doc["views"])
}

func TestFind_WrongCollection(t *testing.T) {
	c := postsFixture(t)
	_, err := c.Find(context.Background(), &query.Assembled{Collection: "users"})
	assert.Error(t, err)
}

func TestFindOne_NoMatch(t *testing.T) {
	c := postsFixture(t)
	doc, err := c.FindOne(context.Background(), &query.Assembled{Collection: "posts", Filter: query.Eq("_id", "nope")})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestFind_Populate(t *testing.T) {
	s := createTestStore(t)
	seed(t, s.Collection("users"), query.Document{"_id": "u1", "name": "Ada", "password": "x"})
	seed(t, s.Collection("comments"),
		query.Document{"_id": "m1", "postId": "p1", "text": "hi"},
		query.Document{"_id": "m2", "postId": "p1", "text": "there"},
	)
	posts := s.Collection("posts")
	seed(t, posts, query.Document{"_id": "p1", "authorId": "u1", "title": "t"})

	doc, err := posts.FindOne(context.Background(), &query.Assembled{
		Collection: "posts",
		Filter:     query.Eq("_id", "p1"),
		Projection: query.Projection{Include: []string{"_id", "title"}},
		Populate: []*query.Populate{
			{
				Path: "author", From: "users", LocalField: "authorId", ForeignField: "_id", JustOne: true,
				Projection: query.Projection{Include: []string{"_id", "name"}},
			},
			{
				Path: "comments", From: "comments", LocalField: "_id", ForeignField: "postId",
				Projection: query.Projection{Include: []string{"text"}},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, query.Document{
		"_id":      "p1",
		"title":    "t",
		"author":   query.Document{"_id": "u1", "name": "Ada"},
		"comments": []query.Document{{"text": "hi"}, {"text": "there"}},
	}, doc)
}

func TestCreate(t *testing.T) {
	c := createTestStore(t, "gen-1", "gen-2").Collection("posts")
	ctx := context.Background()

	docs, err := c.Create(ctx, query.Document{"title": "a"}, query.Document{"_id": "mine", "title": "b"}, query.Document{"title": "c", "views": 2})
	require.NoError(t, err)
	assert.Equal(t, []any{"gen-1", "mine", "gen-2"}, ids(docs))
	assert.Equal(t, int64(2), docs[2]["views"], "returned as stored")

	_, err = c.Create(ctx, query.Document{"_id": "mine"})
	require.Error(t, err, "duplicate _id")

	n, err := c.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "failed batch leaves nothing behind")
}

func TestCreate_SameIDAcrossCollections(t *testing.T) {
	s := createTestStore(t)
	seed(t, s.Collection("a"), query.Document{"_id": "x"})
	seed(t, s.Collection("b"), query.Document{"_id": "x"})
}

func TestCreate_NonStringID(t *testing.T) {
	c := createTestStore(t).Collection("counters")
	seed(t, c, query.Document{"_id": 7, "n": 1})

	doc, err := c.FindOne(context.Background(), &query.Assembled{Collection: "counters", Filter: query.Eq("_id", 7)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc["_id"])
}

func TestCount(t *testing.T) {
	c := postsFixture(t)
	n, err := c.Count(context.Background(), query.Eq("status", "published"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = c.Count(context.Background(), query.Filter{"$where": {query.OpEq: 1}})
	assert.Error(t, err)
}

func TestFindOneAndUpdate(t *testing.T) {
	c := postsFixture(t)
	ctx := context.Background()

	updated, err := c.FindOneAndUpdate(ctx, query.Eq("_id", "p2"), query.Document{"status": "published", "_id": "hijack", "views": 4})
	require.NoError(t, err)
	assert.Equal(t, query.Document{"_id": "p2", "title": "bravo", "views": int64(4), "status": "published"}, updated)

	n, err := c.Count(ctx, query.Eq("status", "published"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	missing, err := c.FindOneAndUpdate(ctx, query.Eq("_id", "nope"), query.Document{"a": 1})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindOneAndUpdate_FirstMatchOnly(t *testing.T) {
	c := postsFixture(t)
	ctx := context.Background()

	updated, err := c.FindOneAndUpdate(ctx, query.Eq("status", "published"), query.Document{"flag": true})
	require.NoError(t, err)
	assert.Equal(t, "p1", updated["_id"])

	n, err := c.Count(ctx, query.Eq("flag", true))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReplaceOne(t *testing.T) {
	c := postsFixture(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceOne(ctx, query.Eq("_id", "p1"), query.Document{"_id": "other", "title": "new"}))

	doc, err := c.FindOne(ctx, &query.Assembled{Collection: "posts", Filter: query.Eq("_id", "p1")})
	require.NoError(t, err)
	assert.Equal(t, query.Document{"_id": "p1", "title": "new"}, doc)

	require.NoError(t, c.ReplaceOne(ctx, query.Eq("_id", "nope"), query.Document{"title": "x"}), "no match is not an error")
}

func TestFindOneAndDelete(t *testing.T) {
	c := postsFixture(t)
	ctx := context.Background()

	deleted, err := c.FindOneAndDelete(ctx, query.Eq("_id", "p3"))
	require.NoError(t, err)
	assert.Equal(t, "charlie", deleted["title"])

	n, err := c.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	deleted, err = c.FindOneAndDelete(ctx, query.Eq("_id", "p3"))
	require.NoError(t, err)
	assert.Nil(t, deleted)
}
