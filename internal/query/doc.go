// Package query defines the descriptor and assembled-query types shared by the
// crud engine and the document stores.
//
// ARCHITECTURE:
//
// The types in this package sit between the transport layer and the stores:
//
//	[transport] → Descriptor → [crud engine] → Assembled → [docstore]
//	                                                     → [mongostore]
//
// A Descriptor is what a caller asked for. An Assembled query is what the
// engine decided to execute after reconciling the descriptor with route
// policy and the schema graph. Stores only ever see Assembled queries and
// Filters; they never interpret caller input directly.
//
// FILTERS:
//
// A Filter maps a field path to a Condition, and a Condition maps an operator
// to its operand:
//
//	Filter{"age": {OpGte: 18}, "status": {OpEq: "active"}}
//
// Conditions use MongoDB operator names so the Mongo backend can pass them
// through unchanged. Only operators listed in AllowedOperators are accepted
// from callers; field paths never start with "$".
//
// POPULATION:
//
// Relation joins are expressed as a tree of Populate nodes. Each node names
// the relation path on its parent document, where the referenced documents
// live, how they are matched (local field → foreign field), and which fields
// of the referenced documents are returned.
//
//	[]*Populate{{
//	  Path: "author", From: "users", LocalField: "authorId", ForeignField: "_id",
//	  JustOne: true,
//	  Populate: []*Populate{{Path: "company", ...}},
//	}}
//
// All types are plain values; an Assembled query is not modified after the
// engine returns it.
package query
