package testutil

import (
	"testing"

	"github.com/roach88/crudq/internal/schema"
)

// BlogEntities returns the entities of a small blog: users belong to a
// company and write posts; posts have comments.
//
// Every relation kind appears: single (author, company), many (posts,
// comments) and two-level chains (post.author.company).
func BlogEntities() []schema.Entity {
	return []schema.Entity{
		{
			Name:   "User",
			Fields: []string{"name", "email", "password", "companyId"},
			Relations: map[string]schema.Relation{
				"company": {Target: "Company", LocalField: "companyId", JustOne: true},
				"posts":   {Target: "Post", LocalField: "_id", ForeignField: "authorId"},
			},
		},
		{
			Name:       "Company",
			Collection: "companies",
			Fields:     []string{"name", "domain"},
			Relations: map[string]schema.Relation{
				"users": {Target: "User", LocalField: "_id", ForeignField: "companyId"},
			},
		},
		{
			Name:   "Post",
			Fields: []string{"title", "body", "status", "views", "authorId"},
			Relations: map[string]schema.Relation{
				"author":   {Target: "User", LocalField: "authorId", JustOne: true},
				"comments": {Target: "Comment", LocalField: "_id", ForeignField: "postId"},
			},
		},
		{
			Name:   "Comment",
			Fields: []string{"text", "postId", "authorId"},
			Relations: map[string]schema.Relation{
				"author": {Target: "User", LocalField: "authorId", JustOne: true},
				"post":   {Target: "Post", LocalField: "postId", JustOne: true},
			},
		},
	}
}

// BlogGraph builds the blog schema graph, failing the test on error.
func BlogGraph(t testing.TB) *schema.Graph {
	t.Helper()
	g, err := schema.NewGraph(BlogEntities()...)
	if err != nil {
		t.Fatalf("blog graph: %v", err)
	}
	return g
}

// IntPtr returns a pointer to v, for descriptor page/offset/limit fields.
func IntPtr(v int) *int {
	return &v
}
