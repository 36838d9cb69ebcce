// Package table implements decision tables: ordered condition rows over typed
// request fields, evaluated first-match-wins against a request to produce a
// typed response.
//
// # Architecture
//
// A Table is built from four layers:
//
//  1. Registry - typed input and output fields with defaults
//  2. Predicate - a typed operator bound to one input field, with literal or
//     Dynamic Value (reference) operands
//  3. Row - an ordered set of predicates combined with ALL or ANY, paired
//     with an outcome over output fields
//  4. Table - ordered rows plus an optional trailing fallback row
//
// # Evaluation Flow
//
//	Request
//	   ↓
//	Schema step (defaults, optional validation)
//	   ↓
//	For each row in order:
//	  Evaluate predicates (references resolved on every call)
//	    Match → merge outcome over output defaults → Decision
//	    No match → next row
//	   ↓
//	Fallback row, or NoMatchError
//
// # Concurrency
//
// Solve reads one immutable snapshot loaded from an atomic pointer, so any
// number of solves run in parallel without locks. Structural edits go through
// Edit, which serializes writers, applies every operation to a private copy
// and swaps it in only when the whole edit succeeds.
//
// # Basic Usage
//
//	t := table.New("Health Insurance Account Selector",
//	    table.WithResolver(resolver),
//	)
//	_ = t.AddInput("age", table.TypeNumber, "Age of the individual", 0)
//	_ = t.AddOutput("recommended_plan", table.TypeString, "Recommended plan", "")
//
//	_, _ = t.AppendRow(ctx, table.All(
//	    table.Between("age", 18, 35),
//	).Then(table.Outcome{"recommended_plan": "HSA"}))
//	_, _ = t.AppendRow(ctx, table.Fallback().Then(table.Outcome{"recommended_plan": "Unknown"}))
//
//	decision, err := t.Solve(ctx, table.Request{"age": 25})
package table
