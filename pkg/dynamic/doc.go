// Package dynamic implements the Dynamic Value store: named, typed constants
// that decision table predicates reference by name instead of embedding a
// literal.
//
// Values are upserted with Set, which infers the field type from the Go
// value. Delete refuses to remove a value while a ReferenceChecker reports
// that some table still references it. NewResolver adapts any Store to the
// table.Resolver interface; it performs a store lookup on every call so that
// a changed value is visible on the very next solve.
//
// Two backends are provided: MemoryStore for tests and single-process use,
// and SQLiteStore for durable storage.
package dynamic
