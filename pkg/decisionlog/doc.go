// Package decisionlog records every decision a workspace makes so it can be
// queried, exported and pruned later.
//
// # Architecture
//
// The decision log has four layers:
//
//  1. Recorder - builds Records from solves and writes them asynchronously
//  2. Storage - persists Records (SQLite or memory)
//  3. Query - validates filters and applies defaults
//  4. Retention - prunes old Records on a cron schedule
//
// # Recording Flow
//
//	Workspace.Solve → table.Decision
//	     ↓
//	Recorder.Record (non-blocking, buffered channel)
//	     ↓
//	Storage.Store (WAL mode SQLite)
//
// A full buffer drops the record after the configured write timeout and
// returns a RecorderError; Close drains everything already queued.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(storage.DefaultSQLiteConfig())
//	if err != nil {
//		return err
//	}
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	q := &decisionlog.Query{Slug: "health-plans"}
//	query.ApplyDefaults(q)
//	if err := query.Validate(q); err != nil {
//		return err
//	}
//	records, err := store.Query(ctx, q)
package decisionlog
