package ruletest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"time"

	"mercator-hq/verdict/pkg/table"
)

// Run solves every test request and compares the expected fields.
// Tests run in order and a failing test never stops the run.
func Run(ctx context.Context, solver Solver, tests []Test) *Report {
	start := time.Now()
	report := &Report{Results: make([]Result, 0, len(tests))}

	for _, tc := range tests {
		res := runOne(ctx, solver, tc)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}

	report.Duration = time.Since(start)
	return report
}

func runOne(ctx context.Context, solver Solver, tc Test) Result {
	start := time.Now()
	res := Result{Test: tc}

	decision, err := solver.Solve(ctx, tc.Request)
	res.Duration = time.Since(start)

	if tc.ExpectNoMatch {
		switch {
		case errors.Is(err, table.ErrNoMatch):
			res.Passed = true
		case err != nil:
			res.Error = err.Error()
		default:
			res.Actual = decision.Response
			res.RowID = decision.RowID
			res.Error = "expected no matching row"
		}
		return res
	}

	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Actual = decision.Response
	res.RowID = decision.RowID
	res.Mismatches = compare(tc.Expect, decision.Response)
	res.Passed = len(res.Mismatches) == 0
	return res
}

// compare returns the expected fields whose actual values differ, sorted by field.
func compare(expect, actual table.Response) []Mismatch {
	var out []Mismatch
	for field, want := range expect {
		got, ok := actual[field]
		if !ok || !valuesEqual(want, got) {
			out = append(out, Mismatch{Field: field, Expected: want, Actual: got})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// valuesEqual compares numbers by value regardless of their Go kind.
func valuesEqual(a, b any) bool {
	ta, va, okA := table.InferType(a)
	tb, vb, okB := table.InferType(b)
	if okA && okB {
		return ta == tb && va == vb
	}
	return reflect.DeepEqual(a, b)
}

// Write prints a human readable report.
func (r *Report) Write(w io.Writer) {
	for _, res := range r.Results {
		if res.Passed {
			fmt.Fprintf(w, "✓ %s (%.1fms)\n", res.Test.Name, res.Duration.Seconds()*1000)
			continue
		}

		marker := ""
		if res.Test.Critical {
			marker = " [critical]"
		}
		fmt.Fprintf(w, "✗ %s%s\n", res.Test.Name, marker)
		if res.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", res.Error)
		}
		for _, m := range res.Mismatches {
			fmt.Fprintf(w, "  %s: expected %v, got %v\n", m.Field, m.Expected, m.Actual)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d tests run, %d passed, %d failed\n", len(r.Results), r.Passed, r.Failed)

	if critical := r.CriticalFailures(); len(critical) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Critical failures:")
		for _, res := range critical {
			fmt.Fprintf(w, "  - %s\n", res.Test.Name)
		}
	}
}
