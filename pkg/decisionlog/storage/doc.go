// Package storage provides decision log storage backends.
//
//   - SQLite: durable storage with WAL mode, indexes on slug, row and time
//   - Memory: in-memory storage for tests and `verdict serve` without a
//     database
//
// Both implement decisionlog.Storage. A zero Query.Limit returns every
// matching record; callers that take limits from users run
// query.ApplyDefaults and query.Validate first.
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:         "data/decisions.db",
//	    MaxOpenConns: 10,
//	    WALMode:      true,
//	    BusyTimeout:  5 * time.Second,
//	})
package storage
