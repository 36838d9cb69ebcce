package ruletest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/verdict/pkg/table"
)

func newPlanTable(t *testing.T, withFallback bool) *table.Table {
	t.Helper()
	ctx := context.Background()

	tbl := table.New("plans")
	must(t, tbl.AddInput("age", table.TypeNumber, "", nil))
	must(t, tbl.AddInput("chronic", table.TypeBoolean, "", nil))
	must(t, tbl.AddOutput("recommended_plan", table.TypeString, "", nil))
	must(t, tbl.AddOutput("estimated_premium", table.TypeNumber, "", nil))

	_, err := tbl.AppendRow(ctx, table.All(
		table.Between("age", 18, 35),
		table.Equals("chronic", true),
	).Then(table.Outcome{"recommended_plan": "HSA", "estimated_premium": 2000}))
	must(t, err)
	if withFallback {
		_, err = tbl.AppendRow(ctx, table.Fallback().Then(table.Outcome{"recommended_plan": "Unknown"}))
		must(t, err)
	}
	return tbl
}

func TestRun(t *testing.T) {
	tbl := newPlanTable(t, true)

	tests := []Test{
		{
			Name:     "young chronic",
			Request:  table.Request{"age": 25, "chronic": true},
			Expect:   table.Response{"recommended_plan": "HSA", "estimated_premium": 2000},
			Critical: true,
		},
		{
			Name:    "fallback",
			Request: table.Request{"age": 70},
			Expect:  table.Response{"recommended_plan": "Unknown"},
		},
		{
			Name:     "wrong expectation",
			Request:  table.Request{"age": 70},
			Expect:   table.Response{"recommended_plan": "PPO"},
			Critical: true,
		},
		{
			Name:    "invalid request",
			Request: table.Request{"age": "old"},
			Expect:  table.Response{"recommended_plan": "Unknown"},
		},
	}

	report := Run(context.Background(), tbl, tests)

	if report.Passed != 2 || report.Failed != 2 {
		t.Fatalf("report passed/failed = %d/%d, want 2/2", report.Passed, report.Failed)
	}
	if report.OK() {
		t.Error("OK() = true with failures")
	}

	wrong := report.Results[2]
	if len(wrong.Mismatches) != 1 || wrong.Mismatches[0].Field != "recommended_plan" || wrong.Mismatches[0].Actual != "Unknown" {
		t.Errorf("mismatches = %+v, want recommended_plan Unknown", wrong.Mismatches)
	}
	if report.Results[3].Error == "" {
		t.Error("invalid request result has no error")
	}

	critical := report.CriticalFailures()
	if len(critical) != 1 || critical[0].Test.Name != "wrong expectation" {
		t.Errorf("CriticalFailures() = %+v, want [wrong expectation]", critical)
	}
}

func TestRun_ExpectNoMatch(t *testing.T) {
	tbl := newPlanTable(t, false)

	report := Run(context.Background(), tbl, []Test{
		{Name: "no match", Request: table.Request{"age": 90}, ExpectNoMatch: true},
		{Name: "unexpected match", Request: table.Request{"age": 20, "chronic": true}, ExpectNoMatch: true},
	})

	if !report.Results[0].Passed {
		t.Errorf("no match result = %+v, want passed", report.Results[0])
	}
	if report.Results[1].Passed {
		t.Error("unexpected match passed")
	}
}

func TestReport_Write(t *testing.T) {
	tbl := newPlanTable(t, true)
	report := Run(context.Background(), tbl, []Test{
		{Name: "passes", Request: table.Request{"age": 20, "chronic": true}, Expect: table.Response{"recommended_plan": "HSA"}},
		{Name: "fails", Request: table.Request{"age": 20}, Expect: table.Response{"recommended_plan": "HSA"}, Critical: true},
	})

	var buf bytes.Buffer
	report.Write(&buf)
	out := buf.String()

	for _, want := range []string{
		"✓ passes",
		"✗ fails [critical]",
		"recommended_plan: expected HSA, got Unknown",
		"2 tests run, 1 passed, 1 failed",
		"Critical failures:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Write() output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadSuite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	content := `
tests:
  - name: young chronic
    critical: true
    request:
      age: 25
      chronic: true
    expect:
      recommended_plan: HSA
      estimated_premium: 2000
  - name: nothing matches
    request:
      age: 90
    expect_no_match: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tests, err := LoadSuite(path)
	if err != nil {
		t.Fatalf("LoadSuite() error = %v", err)
	}
	if len(tests) != 2 || !tests[0].Critical || !tests[1].ExpectNoMatch {
		t.Fatalf("LoadSuite() = %+v", tests)
	}

	report := Run(context.Background(), newPlanTable(t, false), tests)
	if !report.OK() {
		var buf bytes.Buffer
		report.Write(&buf)
		t.Errorf("suite failed:\n%s", buf.String())
	}
}

func TestParseSuite_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing name", data: "tests:\n  - request: {age: 1}\n    expect: {plan: x}\n"},
		{name: "missing expectation", data: "tests:\n  - name: empty\n    request: {age: 1}\n"},
		{name: "not yaml", data: "tests: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSuite([]byte(tt.data)); err == nil {
				t.Error("ParseSuite() error = nil, want error")
			}
		})
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
