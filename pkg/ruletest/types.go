package ruletest

import (
	"context"
	"time"

	"mercator-hq/verdict/pkg/table"
)

// Test is one rule test fixture.
type Test struct {
	// Name identifies the test in reports.
	Name string `yaml:"name" json:"name"`

	// Description is free text.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Request is solved against the table.
	Request table.Request `yaml:"request" json:"request"`

	// Expect lists the response fields to compare.
	Expect table.Response `yaml:"expect" json:"expect"`

	// ExpectNoMatch expects the table to fail with a no-match error.
	ExpectNoMatch bool `yaml:"expect_no_match,omitempty" json:"expect_no_match,omitempty"`

	// Critical failures block publishing.
	Critical bool `yaml:"critical,omitempty" json:"critical,omitempty"`
}

// Suite is the YAML document holding a list of tests.
type Suite struct {
	Tests []Test `yaml:"tests" json:"tests"`
}

// Solver solves a request. *table.Table satisfies it.
type Solver interface {
	Solve(ctx context.Context, req table.Request) (*table.Decision, error)
}

// Mismatch is one expected field whose actual value differs.
type Mismatch struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// Result is the outcome of one test.
type Result struct {
	Test       Test           `json:"test"`
	Passed     bool           `json:"passed"`
	Actual     table.Response `json:"actual,omitempty"`
	RowID      string         `json:"row_id,omitempty"`
	Mismatches []Mismatch     `json:"mismatches,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// Report aggregates the results of a run.
type Report struct {
	Results  []Result      `json:"results"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether every test passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// CriticalFailures returns the failed critical tests.
func (r *Report) CriticalFailures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed && res.Test.Critical {
			out = append(out, res)
		}
	}
	return out
}

// Failures returns every failed test.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
