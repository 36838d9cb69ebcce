package cli

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/verdict/pkg/ruletest"
)

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}

	output, err := formatter.Format("test message")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(output) != "test message\n" {
		t.Errorf("Format() = %q, want %q", string(output), "test message\n")
	}
}

func TestTextFormatter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	data := Table{
		Header: []string{"slug", "status"},
		Rows:   [][]string{{"health-plans", "PUBLISHED"}, {"shipping", "PENDING"}},
	}

	if err := (&TextFormatter{}).FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"slug", "health-plans", "PUBLISHED", "shipping", "┌"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   interface{}
		indent bool
	}{
		{name: "simple string", data: "test"},
		{name: "map with indent", data: map[string]string{"key": "value"}, indent: true},
		{
			name: "struct",
			data: struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			}{Name: "test", Value: 42},
			indent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var result interface{}
			if err := json.Unmarshal(output, &result); err != nil {
				t.Errorf("Format() produced invalid JSON: %v", err)
			}
			if tt.indent && !bytes.Contains(output, []byte("\n")) {
				t.Error("indented output has no newlines")
			}
		})
	}
}

func TestCSVFormatter(t *testing.T) {
	data := Table{
		Header: []string{"name", "value"},
		Rows:   [][]string{{"income_cap", "100000"}, {"region", "north, east"}},
	}

	output, err := (&CSVFormatter{}).Format(data)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "name,value\nincome_cap,100000\nregion,\"north, east\"\n"
	if string(output) != want {
		t.Errorf("Format() = %q, want %q", output, want)
	}

	output, err = (&CSVFormatter{OmitHeader: true}).Format(data)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(string(output), "name") {
		t.Error("OmitHeader still wrote the header")
	}

	if _, err := (&CSVFormatter{}).Format("plain"); !errors.Is(err, ErrUnsupportedOutput) {
		t.Errorf("Format(string) error = %v, want ErrUnsupportedOutput", err)
	}
}

func TestJUnitFormatter(t *testing.T) {
	report := &ruletest.Report{
		Results: []ruletest.Result{
			{Test: ruletest.Test{Name: "young applicant"}, Passed: true, Duration: time.Millisecond},
			{
				Test: ruletest.Test{Name: "senior applicant", Critical: true},
				Mismatches: []ruletest.Mismatch{
					{Field: "recommended_plan", Expected: "PPO", Actual: "Unknown"},
				},
			},
			{Test: ruletest.Test{Name: "bad request"}, Error: "schema validation failed"},
		},
		Passed:   1,
		Failed:   2,
		Duration: 3 * time.Millisecond,
	}

	output, err := (&JUnitFormatter{Suite: "health-plans"}).Format(report)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var suite junitSuite
	if err := xml.Unmarshal(output, &suite); err != nil {
		t.Fatalf("invalid XML: %v\n%s", err, output)
	}
	if suite.Name != "health-plans" || suite.Tests != 3 || suite.Failures != 2 {
		t.Errorf("suite = %+v", suite)
	}
	if suite.Cases[0].Failure != nil {
		t.Error("passing case has a failure element")
	}
	if f := suite.Cases[1].Failure; f == nil || f.Type != "critical" || !strings.Contains(f.Body, "recommended_plan") {
		t.Errorf("critical failure = %+v", f)
	}
	if f := suite.Cases[2].Failure; f == nil || f.Message != "schema validation failed" {
		t.Errorf("error failure = %+v", f)
	}

	if _, err := (&JUnitFormatter{}).Format("nope"); !errors.Is(err, ErrUnsupportedOutput) {
		t.Errorf("Format(string) error = %v, want ErrUnsupportedOutput", err)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{FormatJUnit, "*cli.JUnitFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			got := typeName(NewFormatter(tt.format))
			if got != tt.want {
				t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	if f, err := ParseOutputFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseOutputFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseOutputFormat("junit"); err != nil || f != FormatJUnit {
		t.Errorf("ParseOutputFormat(junit) = %q, %v", f, err)
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("ParseOutputFormat(yaml) error = nil")
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *TextFormatter:
		return "*cli.TextFormatter"
	case *JSONFormatter:
		return "*cli.JSONFormatter"
	case *CSVFormatter:
		return "*cli.CSVFormatter"
	case *JUnitFormatter:
		return "*cli.JUnitFormatter"
	default:
		return "unknown"
	}
}
