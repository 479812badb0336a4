// Package docstore provides SQLite-backed document storage for crudq.
//
// Every collection lives in one documents table; a document is stored as
// JSON text and addressed by (collection, _id). Store.Collection returns a
// Collection, which implements crud.Store; Store itself implements
// populate.Fetcher so joins can read any collection.
//
// # Critical Patterns
//
// Parameterized SQL only
//   - Queries are compiled by internal/docsql; values and field paths are
//     bound parameters, never interpolated.
//
// Deterministic results
//   - Every query orders by its sort keys, then by insertion sequence.
//   - "First match" for writes means first in that order.
//
// Immutable identity
//   - _id is assigned on create (IDGenerator, UUIDv7 by default) and never
//     changes on update or replace.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package docstore
